package ports

import (
	"context"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	"commitreveal/internal/shared/events"
	"commitreveal/internal/shared/outbox"
)

// SessionRepository is the engine's authoritative state. AppendCommit and
// RevealCommit must each apply as a single indivisible transition: an
// implementation serializes them per session (mutex, row lock, ...).
type SessionRepository interface {
	CreateSession(ctx context.Context, session entities.VotingSession) error
	GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error)

	// AppendCommit rejects a commitment already present in the session with
	// ErrDuplicateCommit and otherwise records it in insertion order.
	AppendCommit(
		ctx context.Context,
		sessionID string,
		commitment entities.Commitment,
		voterID string,
		now time.Time,
	) (entities.VotingSession, entities.CommitRecord, error)

	// RevealCommit flips a Committed record to Revealed and increments the
	// tally for choice. Missing records fail with ErrUnknownCommitment,
	// revealed ones with ErrAlreadyRevealed.
	RevealCommit(
		ctx context.Context,
		sessionID string,
		commitment entities.Commitment,
		choice entities.Choice,
		voterID string,
		now time.Time,
	) (entities.VotingSession, entities.CommitRecord, error)

	ListCommits(ctx context.Context, sessionID string) ([]entities.CommitRecord, error)
	GetCommit(ctx context.Context, sessionID string, commitment entities.Commitment) (entities.CommitRecord, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	SessionID   string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
	Delete(ctx context.Context, key string) error
}

type EventEnvelope = events.Envelope

type OutboxMessage = outbox.Message

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventDedupStore reserves consumed event ids. ReserveEvent reports true when
// the event was already processed with the same payload.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// VotingMetrics receives engine outcomes. A nil implementation is allowed.
type VotingMetrics interface {
	SessionStarted()
	CommitAccepted()
	RevealAccepted(choice entities.Choice)
	OperationRejected(operation string, reason string)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
