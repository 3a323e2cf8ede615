package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "commitreveal/contexts/governance/commit-reveal-voting/application"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

const defaultAnnouncerCG = "commit-reveal-result-announcer-cg"

// ResultAnnouncer consumes voting_session.revealed and emits the final result
// of the session through the outbox. Ties are announced with an empty winner.
type ResultAnnouncer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Sessions      ports.SessionRepository
	Outbox        ports.OutboxWriter
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	ConsumerGroup string
	TopicPrefix   string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (a ResultAnnouncer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(a.Logger)
	if a.Disabled {
		logger.Info("result announcer disabled by feature flag",
			"event", "commit_reveal_announcer_disabled",
			"module", application.ModuleName,
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(a.ConsumerGroup)
	if group == "" {
		group = defaultAnnouncerCG
	}
	topic := a.TopicPrefix + EventSessionRevealed
	if err := a.Subscriber.Subscribe(ctx, topic, group, a.handleSessionRevealed); err != nil {
		logger.Error("result announcer subscribe failed",
			"event", "commit_reveal_announcer_subscribe_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"topic", topic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("result announcer subscription active",
		"event", "commit_reveal_announcer_started",
		"module", application.ModuleName,
		"layer", "worker",
		"topic", topic,
		"consumer_group", group,
	)
	return nil
}

func (a ResultAnnouncer) handleSessionRevealed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(a.Logger)
	alreadyProcessed, err := a.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), a.now().Add(a.dedupTTL()))
	if err != nil {
		logger.Error("session revealed dedupe failed",
			"event", "commit_reveal_announcer_dedupe_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if alreadyProcessed {
		logger.Debug("voting_session.revealed replay skipped",
			"event", "commit_reveal_announcer_replayed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}

	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("voting_session.revealed payload decode failed",
			"event", "commit_reveal_announcer_decode_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	session, err := a.Sessions.GetSession(ctx, payload.SessionID)
	if err != nil {
		return err
	}

	now := a.now()
	winnerLabel := ""
	winnerChoice := 0
	choice, label, err := session.Winner()
	switch {
	case errors.Is(err, domainerrors.ErrTie):
	case err != nil:
		return err
	default:
		winnerLabel = label
		winnerChoice = int(choice)
	}

	if a.Outbox != nil {
		eventID, err := a.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		envelope, err := newVotingEnvelope(eventID, EventSessionResultAnnounced, session.SessionID, now, map[string]any{
			"session_id":     session.SessionID,
			"question":       session.Question,
			"winner_choice":  winnerChoice,
			"winner_label":   winnerLabel,
			"tied":           winnerChoice == 0,
			"votes_choice_1": session.Tally.Choice1,
			"votes_choice_2": session.Tally.Choice2,
			"votes_cast":     session.CommitCount,
			"source_event":   event.EventID,
			"occurred_at":    now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := a.Outbox.AppendOutbox(ctx, envelope); err != nil {
			return err
		}
	}

	logger.Info("voting session result announced",
		"event", "commit_reveal_result_announced",
		"module", application.ModuleName,
		"layer", "worker",
		"session_id", session.SessionID,
		"winner_label", winnerLabel,
		"tied", winnerChoice == 0,
	)
	return nil
}

func (a ResultAnnouncer) now() time.Time {
	now := time.Now().UTC()
	if a.Clock != nil {
		now = a.Clock.Now().UTC()
	}
	return now
}

func (a ResultAnnouncer) dedupTTL() time.Duration {
	if a.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return a.DedupTTL
}
