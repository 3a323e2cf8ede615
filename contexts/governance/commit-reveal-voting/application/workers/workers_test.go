package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/adapters/memory"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

type capturePublisher struct {
	topics []string
	events []ports.EventEnvelope
	failOn string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failOn != "" && event.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type captureSubscriber struct {
	topic   string
	group   string
	handler func(context.Context, ports.EventEnvelope) error
}

func (s *captureSubscriber) Subscribe(
	_ context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.topic = topic
	s.group = consumerGroup
	s.handler = handler
	return nil
}

var workerStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func appendEvent(t *testing.T, store *memory.Store, eventID string, eventType string, offset time.Duration) {
	t.Helper()
	envelope, err := newVotingEnvelope(eventID, eventType, "s-1", workerStart.Add(offset), map[string]any{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := store.AppendOutbox(context.Background(), envelope); err != nil {
		t.Fatalf("append outbox: %v", err)
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore(nil)
	appendEvent(t, store, "evt-1", "vote.committed", 0)
	appendEvent(t, store, "evt-2", "vote.revealed", time.Second)

	publisher := &capturePublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, TopicPrefix: "test."}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	if publisher.topics[0] != "test.vote.committed" || publisher.topics[1] != "test.vote.revealed" {
		t.Fatalf("unexpected topics %v", publisher.topics)
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
}

func TestOutboxRelayKeepsWriteOrderForSameInstant(t *testing.T) {
	store := memory.NewStore(nil)
	appendEvent(t, store, "evt-z", "vote.revealed", 0)
	appendEvent(t, store, "evt-a", "voting_session.revealed", 0)

	publisher := &capturePublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	if publisher.events[0].EventID != "evt-z" || publisher.events[1].EventID != "evt-a" {
		t.Fatalf("expected write order evt-z, evt-a; got %s, %s",
			publisher.events[0].EventID, publisher.events[1].EventID)
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore(nil)
	appendEvent(t, store, "evt-1", "vote.committed", 0)
	appendEvent(t, store, "evt-2", "vote.committed", time.Second)

	relay := OutboxRelay{Outbox: store, Publisher: &capturePublisher{failOn: "evt-1"}, Clock: store}
	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatal("expected publish failure")
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both rows to stay pending, got %d", len(pending))
	}
}

func revealedSessionStore(t *testing.T, secrets map[string]entities.Choice) *memory.Store {
	t.Helper()
	session, err := entities.NewVotingSession("s-1", "Dogs or cats?", "YES", "NO", time.Minute, "", workerStart)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	store := memory.NewStore([]entities.VotingSession{session})
	ctx := context.Background()
	for secret, choice := range secrets {
		commitment, err := entities.HashVote(choice, secret)
		if err != nil {
			t.Fatalf("hash vote: %v", err)
		}
		if _, _, err := store.AppendCommit(ctx, "s-1", commitment, "", workerStart); err != nil {
			t.Fatalf("append commit: %v", err)
		}
		if _, _, err := store.RevealCommit(ctx, "s-1", commitment, choice, "", session.CommitDeadline); err != nil {
			t.Fatalf("reveal commit: %v", err)
		}
	}
	return store
}

func announcedResults(t *testing.T, store *memory.Store) []map[string]any {
	t.Helper()
	pending, err := store.ListPendingOutbox(context.Background(), 100)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	var results []map[string]any
	for _, row := range pending {
		if row.EventType != EventSessionResultAnnounced {
			continue
		}
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		var data map[string]any
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		results = append(results, data)
	}
	return results
}

func TestResultAnnouncerAnnouncesOncePerEvent(t *testing.T) {
	store := revealedSessionStore(t, map[string]entities.Choice{
		"a": entities.ChoiceOne,
		"b": entities.ChoiceOne,
		"c": entities.ChoiceTwo,
	})
	subscriber := &captureSubscriber{}
	announcer := ResultAnnouncer{
		Subscriber:  subscriber,
		Dedup:       store,
		Sessions:    store,
		Outbox:      store,
		Clock:       store,
		IDGen:       store,
		TopicPrefix: "test.",
	}
	if err := announcer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.topic != "test."+EventSessionRevealed || subscriber.group != defaultAnnouncerCG {
		t.Fatalf("unexpected subscription %s/%s", subscriber.topic, subscriber.group)
	}

	event, err := newVotingEnvelope("evt-revealed", EventSessionRevealed, "s-1", workerStart, map[string]any{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := subscriber.handler(context.Background(), event); err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	}

	results := announcedResults(t, store)
	if len(results) != 1 {
		t.Fatalf("expected a single announcement, got %d", len(results))
	}
	if results[0]["winner_label"] != "YES" || results[0]["tied"] != false {
		t.Fatalf("unexpected announcement %v", results[0])
	}
}

func TestResultAnnouncerAnnouncesTie(t *testing.T) {
	store := revealedSessionStore(t, map[string]entities.Choice{
		"a": entities.ChoiceOne,
		"b": entities.ChoiceTwo,
	})
	announcer := ResultAnnouncer{Dedup: store, Sessions: store, Outbox: store, Clock: store, IDGen: store}

	event, err := newVotingEnvelope("evt-tie", EventSessionRevealed, "s-1", workerStart, map[string]any{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := announcer.handleSessionRevealed(context.Background(), event); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	results := announcedResults(t, store)
	if len(results) != 1 || results[0]["tied"] != true || results[0]["winner_label"] != "" {
		t.Fatalf("expected a tie announcement, got %v", results)
	}
}

func TestResultAnnouncerDisabled(t *testing.T) {
	subscriber := &captureSubscriber{}
	announcer := ResultAnnouncer{Subscriber: subscriber, Disabled: true}
	if err := announcer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.handler != nil {
		t.Fatal("disabled announcer must not subscribe")
	}
}
