package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var storeStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) (*Store, entities.VotingSession) {
	t.Helper()
	session, err := entities.NewVotingSession("s-1", "Dogs or cats?", "YES", "NO", time.Minute, "", storeStart)
	require.NoError(t, err)
	return NewStore([]entities.VotingSession{session}), session
}

func hashVote(t *testing.T, choice entities.Choice, secret string) entities.Commitment {
	t.Helper()
	commitment, err := entities.HashVote(choice, secret)
	require.NoError(t, err)
	return commitment
}

func TestStoreCreateSessionRejectsExistingHandle(t *testing.T) {
	store, session := seededStore(t)
	err := store.CreateSession(context.Background(), session)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = store.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, domainerrors.ErrSessionNotFound)
}

func TestStoreAppendCommitKeepsInsertionOrder(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()
	first := hashVote(t, entities.ChoiceTwo, "b")
	second := hashVote(t, entities.ChoiceOne, "a")

	_, _, err := store.AppendCommit(ctx, "s-1", first, "v1", storeStart)
	require.NoError(t, err)
	session, record, err := store.AppendCommit(ctx, "s-1", second, "v2", storeStart.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, record.Position)
	require.Equal(t, 2, session.CommitCount)

	_, _, err = store.AppendCommit(ctx, "s-1", first, "v3", storeStart.Add(2*time.Second))
	require.ErrorIs(t, err, domainerrors.ErrDuplicateCommit)

	items, err := store.ListCommits(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first, items[0].Commitment)
	require.Equal(t, second, items[1].Commitment)
}

func TestStoreRevealCommitErrorOrdering(t *testing.T) {
	store, session := seededStore(t)
	ctx := context.Background()
	commitment := hashVote(t, entities.ChoiceOne, "a")
	_, _, err := store.AppendCommit(ctx, "s-1", commitment, "v1", storeStart)
	require.NoError(t, err)

	// Unknown commitment during the commit phase is still a phase error.
	unknown := hashVote(t, entities.ChoiceTwo, "nope")
	_, _, err = store.RevealCommit(ctx, "s-1", unknown, entities.ChoiceTwo, "v1", storeStart)
	require.ErrorIs(t, err, domainerrors.ErrWrongPhase)

	revealAt := session.CommitDeadline
	_, _, err = store.RevealCommit(ctx, "s-1", unknown, entities.ChoiceTwo, "v1", revealAt)
	require.ErrorIs(t, err, domainerrors.ErrUnknownCommitment)

	updated, record, err := store.RevealCommit(ctx, "s-1", commitment, entities.ChoiceOne, "v1", revealAt)
	require.NoError(t, err)
	require.Equal(t, entities.CommitStatusRevealed, record.Status)
	require.Equal(t, entities.Tally{Choice1: 1}, updated.Tally)

	_, _, err = store.RevealCommit(ctx, "s-1", commitment, entities.ChoiceOne, "v1", revealAt)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyRevealed)

	stored, err := store.GetCommit(ctx, "s-1", commitment)
	require.NoError(t, err)
	require.Equal(t, entities.CommitStatusRevealed, stored.Status)
}

func TestStoreConcurrentDuplicateCommitsAcceptOnce(t *testing.T) {
	store, _ := seededStore(t)
	commitment := hashVote(t, entities.ChoiceOne, "same")

	var accepted, duplicates int32
	results := make(chan error, 32)
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		voter := fmt.Sprintf("v%d", i)
		g.Go(func() error {
			_, _, err := store.AppendCommit(context.Background(), "s-1", commitment, voter, storeStart)
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domainerrors.ErrDuplicateCommit):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.EqualValues(t, 1, accepted)
	require.EqualValues(t, 31, duplicates)

	session, err := store.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, 1, session.CommitCount)
}

func TestStoreConcurrentRevealsCountOnce(t *testing.T) {
	store, session := seededStore(t)
	ctx := context.Background()
	const voters = 16
	for i := 0; i < voters; i++ {
		choice := entities.ChoiceOne
		if i%2 == 1 {
			choice = entities.ChoiceTwo
		}
		_, _, err := store.AppendCommit(ctx, "s-1", hashVote(t, choice, fmt.Sprintf("secret-%d", i)), "", storeStart)
		require.NoError(t, err)
	}

	revealAt := session.CommitDeadline
	var g errgroup.Group
	for i := 0; i < voters; i++ {
		choice := entities.ChoiceOne
		if i%2 == 1 {
			choice = entities.ChoiceTwo
		}
		commitment := hashVote(t, choice, fmt.Sprintf("secret-%d", i))
		// Each vote is revealed twice at once; exactly one may win.
		for attempt := 0; attempt < 2; attempt++ {
			g.Go(func() error {
				_, _, err := store.RevealCommit(ctx, "s-1", commitment, choice, "", revealAt)
				if err != nil && !errors.Is(err, domainerrors.ErrAlreadyRevealed) {
					return err
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	final, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, entities.Tally{Choice1: voters / 2, Choice2: voters / 2}, final.Tally)
	require.Equal(t, voters, final.RevealedCount)
	require.Equal(t, entities.PhaseRevealed, final.PhaseAt(revealAt))
}

func TestStoreIdempotencyRecords(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	record := ports.IdempotencyRecord{
		Key:         "k1",
		RequestHash: "h1",
		SessionID:   "s-1",
		ExpiresAt:   storeStart.Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, record))
	require.NoError(t, store.Put(ctx, record))

	conflicting := record
	conflicting.RequestHash = "h2"
	require.ErrorIs(t, store.Put(ctx, conflicting), domainerrors.ErrIdempotencyConflict)

	got, found, err := store.Get(ctx, "k1", storeStart)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "s-1", got.SessionID)

	_, found, err = store.Get(ctx, "k1", storeStart.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Put(ctx, record))
	require.NoError(t, store.Delete(ctx, "k1"))
	_, found, err = store.Get(ctx, "k1", storeStart)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, store.Put(ctx, conflicting))
}

func TestStoreOutboxLifecycle(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	envelope := ports.EventEnvelope{
		EventID:      "evt-1",
		EventType:    "vote.committed",
		OccurredAt:   storeStart,
		PartitionKey: "s-1",
		Data:         []byte(`{"session_id":"s-1"}`),
	}
	require.NoError(t, store.AppendOutbox(ctx, envelope))
	require.NoError(t, store.AppendOutbox(ctx, envelope))

	changed := envelope
	changed.Data = []byte(`{"session_id":"s-2"}`)
	require.ErrorIs(t, store.AppendOutbox(ctx, changed), domainerrors.ErrConflict)

	pending, err := store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "s-1", pending[0].PartitionKey)

	require.NoError(t, store.MarkOutboxPublished(ctx, "evt-1", storeStart))
	pending, err = store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestStoreOutboxListsInAppendOrder(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	for _, id := range []string{"evt-c", "evt-a", "evt-b"} {
		require.NoError(t, store.AppendOutbox(ctx, ports.EventEnvelope{
			EventID:      id,
			EventType:    "vote.revealed",
			OccurredAt:   storeStart,
			PartitionKey: "s-1",
		}))
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, id := range []string{"evt-c", "evt-a", "evt-b"} {
		require.Equal(t, id, pending[i].OutboxID)
		require.EqualValues(t, i+1, pending[i].Sequence)
	}
}

func TestStoreReserveEvent(t *testing.T) {
	store := NewStore(nil)
	store.SetClock(func() time.Time { return storeStart })
	ctx := context.Background()

	seen, err := store.ReserveEvent(ctx, "evt-1", "hash", storeStart.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = store.ReserveEvent(ctx, "evt-1", "hash", storeStart.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, seen)

	_, err = store.ReserveEvent(ctx, "evt-1", "other", storeStart.Add(time.Hour))
	require.ErrorIs(t, err, domainerrors.ErrConflict)
}
