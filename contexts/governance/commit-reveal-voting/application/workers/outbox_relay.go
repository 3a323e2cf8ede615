package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "commitreveal/contexts/governance/commit-reveal-voting/application"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

// OutboxRelay publishes persisted session and vote events to the event bus.
// TopicPrefix namespaces published topics, e.g. "staging.".
type OutboxRelay struct {
	Outbox      ports.OutboxRepository
	Publisher   ports.EventPublisher
	Clock       ports.Clock
	BatchSize   int
	TopicPrefix string
	Logger      *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// published only after broker publish succeeds. It stops on the first failure
// so the retry loop can reprocess remaining rows safely.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	logger.Info("commit-reveal outbox relay cycle started",
		"event", "commit_reveal_outbox_relay_started",
		"module", application.ModuleName,
		"layer", "worker",
		"batch_size", limit,
	)

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("commit-reveal outbox list failed",
			"event", "commit_reveal_outbox_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		logger.Debug("commit-reveal outbox relay found no pending rows",
			"event", "commit_reveal_outbox_relay_noop",
			"module", application.ModuleName,
			"layer", "worker",
			"batch_size", limit,
		)
		return nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("commit-reveal outbox decode failed",
				"event", "commit_reveal_outbox_decode_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if r.TopicPrefix != "" {
			topic = r.TopicPrefix + topic
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("commit-reveal outbox publish failed",
				"event", "commit_reveal_outbox_publish_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("commit-reveal outbox mark published failed",
				"event", "commit_reveal_outbox_mark_published_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("commit-reveal outbox relay cycle completed",
		"event", "commit_reveal_outbox_relay_completed",
		"module", application.ModuleName,
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}
