package messaging

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"commitreveal/internal/shared/events"
)

const (
	moduleName       = "internal/platform/messaging"
	memberBufferSize = 128
)

// Kafka is the event bus shared by the outbox relay and the result announcer.
// Delivery is in-process and follows consumer-group semantics: every group
// subscribed to a topic receives each event once, and events with the same
// partition key always reach the same group member in publish order.
type Kafka struct {
	mu      sync.RWMutex
	brokers []string
	// topic -> consumer group -> members
	groups map[string]map[string][]*member
	logger *slog.Logger
}

type member struct {
	ch chan events.Envelope
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers: append([]string(nil), brokers...),
		groups:  make(map[string]map[string][]*member),
		logger:  logger,
	}, nil
}

func (k *Kafka) Brokers() []string {
	return append([]string(nil), k.brokers...)
}

func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	k.mu.RLock()
	targets := make(map[string]*member, len(k.groups[topic]))
	for group, members := range k.groups[topic] {
		if len(members) > 0 {
			targets[group] = members[partitionFor(event.PartitionKey, len(members))]
		}
	}
	k.mu.RUnlock()

	for group, target := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case target.ch <- event:
		default:
			k.logger.Warn("dropping event for slow consumer",
				"event", "kafka_publish_drop",
				"module", moduleName,
				"layer", "platform",
				"topic", topic,
				"consumer_group", group,
				"event_id", event.EventID,
			)
		}
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", moduleName,
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
		"consumer_groups", len(targets),
	)
	return nil
}

// Subscribe joins consumerGroup on topic. The membership ends when ctx is
// cancelled.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	m := &member{ch: make(chan events.Envelope, memberBufferSize)}

	k.mu.Lock()
	if k.groups[topic] == nil {
		k.groups[topic] = make(map[string][]*member)
	}
	k.groups[topic][consumerGroup] = append(k.groups[topic][consumerGroup], m)
	k.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				k.leave(topic, consumerGroup, m)
				return
			case event := <-m.ch:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", moduleName,
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (k *Kafka) leave(topic string, consumerGroup string, target *member) {
	k.mu.Lock()
	defer k.mu.Unlock()

	members := k.groups[topic][consumerGroup]
	remaining := make([]*member, 0, len(members))
	for _, m := range members {
		if m != target {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 {
		delete(k.groups[topic], consumerGroup)
		return
	}
	k.groups[topic][consumerGroup] = remaining
}

func partitionFor(key string, members int) int {
	if members <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(members))
}
