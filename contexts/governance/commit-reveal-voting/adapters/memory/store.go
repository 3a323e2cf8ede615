package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// sessionState holds everything one session owns. commits and order are only
// touched while Store.mu is held for writing.
type sessionState struct {
	session entities.VotingSession
	commits map[entities.Commitment]*entities.CommitRecord
	order   []entities.Commitment
}

// Store is the in-process engine state. A single mutex is the sequencing
// point for every commit and reveal.
type Store struct {
	mu sync.RWMutex

	sessions    map[string]*sessionState
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	outboxSeq   int64
	eventDedup  map[string]dedupRecord

	clock func() time.Time
}

func NewStore(seed []entities.VotingSession) *Store {
	sessions := make(map[string]*sessionState, len(seed))
	for _, session := range seed {
		sessions[session.SessionID] = newSessionState(session)
	}
	return &Store{
		sessions:    sessions,
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
		eventDedup:  make(map[string]dedupRecord),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SetClock overrides the time source used by Now.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = now
}

func newSessionState(session entities.VotingSession) *sessionState {
	return &sessionState{
		session: session,
		commits: make(map[entities.Commitment]*entities.CommitRecord),
	}
}

func (s *Store) CreateSession(_ context.Context, session entities.VotingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(session.SessionID)
	if _, exists := s.sessions[key]; exists {
		return domainerrors.ErrConflict
	}
	s.sessions[key] = newSessionState(session)
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (entities.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return entities.VotingSession{}, domainerrors.ErrSessionNotFound
	}
	return state.session, nil
}

func (s *Store) AppendCommit(
	_ context.Context,
	sessionID string,
	commitment entities.Commitment,
	voterID string,
	now time.Time,
) (entities.VotingSession, entities.CommitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return entities.VotingSession{}, entities.CommitRecord{}, domainerrors.ErrSessionNotFound
	}
	if _, exists := state.commits[commitment]; exists {
		return entities.VotingSession{}, entities.CommitRecord{}, domainerrors.ErrDuplicateCommit
	}

	session := state.session
	record, err := session.AcceptCommit(commitment, voterID, now)
	if err != nil {
		return entities.VotingSession{}, entities.CommitRecord{}, err
	}
	state.session = session
	state.commits[commitment] = &record
	state.order = append(state.order, commitment)
	return session, record, nil
}

func (s *Store) RevealCommit(
	_ context.Context,
	sessionID string,
	commitment entities.Commitment,
	choice entities.Choice,
	voterID string,
	now time.Time,
) (entities.VotingSession, entities.CommitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return entities.VotingSession{}, entities.CommitRecord{}, domainerrors.ErrSessionNotFound
	}
	stored, exists := state.commits[commitment]
	if !exists {
		if err := state.session.CheckReveal(now, choice); err != nil {
			return entities.VotingSession{}, entities.CommitRecord{}, err
		}
		return entities.VotingSession{}, entities.CommitRecord{}, domainerrors.ErrUnknownCommitment
	}

	// Work on copies so a rejected reveal leaves no trace.
	session := state.session
	record := *stored
	if err := session.ApplyReveal(&record, choice, voterID, now); err != nil {
		return entities.VotingSession{}, entities.CommitRecord{}, err
	}
	state.session = session
	*stored = record
	return session, record, nil
}

func (s *Store) ListCommits(_ context.Context, sessionID string) ([]entities.CommitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, domainerrors.ErrSessionNotFound
	}
	items := make([]entities.CommitRecord, 0, len(state.order))
	for _, commitment := range state.order {
		items = append(items, *state.commits[commitment])
	}
	return items, nil
}

func (s *Store) GetCommit(
	_ context.Context,
	sessionID string,
	commitment entities.Commitment,
) (entities.CommitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return entities.CommitRecord{}, domainerrors.ErrSessionNotFound
	}
	record, ok := state.commits[commitment]
	if !ok {
		return entities.CommitRecord{}, domainerrors.ErrUnknownCommitment
	}
	return *record, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	existing, exists := s.idempotency[key]
	if exists {
		if existing.RequestHash != record.RequestHash || existing.SessionID != record.SessionID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		SessionID:   strings.TrimSpace(record.SessionID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, strings.TrimSpace(key))
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outboxSeq++
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			Sequence:     s.outboxSeq,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Sequence < items[j].Sequence
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && s.clock().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.SessionRepository = (*Store)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
