package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/adapters/memory"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func seed(t *testing.T, start time.Time) (*memory.Store, entities.VotingSession) {
	t.Helper()
	session, err := entities.NewVotingSession("s-1", "Dogs or cats?", "YES", "NO", time.Minute, "", start)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return memory.NewStore([]entities.VotingSession{session}), session
}

func commit(t *testing.T, store *memory.Store, choice entities.Choice, secret string, at time.Time) entities.Commitment {
	t.Helper()
	commitment, err := entities.HashVote(choice, secret)
	if err != nil {
		t.Fatalf("hash vote: %v", err)
	}
	if _, _, err := store.AppendCommit(context.Background(), "s-1", commitment, "", at); err != nil {
		t.Fatalf("append commit: %v", err)
	}
	return commitment
}

func TestStatusTracksPhases(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, session := seed(t, start)
	clock := &fixedClock{now: start.Add(15 * time.Second)}
	uc := StatusUseCase{Sessions: store, Clock: clock}
	ctx := context.Background()

	status, err := uc.Status(ctx, "s-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Phase != entities.PhaseVoting || status.TimeRemaining != 45*time.Second {
		t.Fatalf("unexpected voting status %+v", status)
	}

	yes := commit(t, store, entities.ChoiceOne, "a", clock.now)
	no := commit(t, store, entities.ChoiceTwo, "b", clock.now)

	clock.now = session.CommitDeadline
	status, err = uc.Status(ctx, "s-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Phase != entities.PhaseRevealing || status.TimeRemaining != 0 {
		t.Fatalf("unexpected revealing status %+v", status)
	}

	for _, reveal := range []struct {
		commitment entities.Commitment
		choice     entities.Choice
	}{{yes, entities.ChoiceOne}, {no, entities.ChoiceTwo}} {
		if _, _, err := store.RevealCommit(ctx, "s-1", reveal.commitment, reveal.choice, "", clock.now); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}
	}
	status, err = uc.Status(ctx, "s-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Phase != entities.PhaseRevealed || !status.Tied || status.WinnerLabel != "" {
		t.Fatalf("expected tied revealed status, got %+v", status)
	}

	if _, err := uc.Winner(ctx, "s-1"); !errors.Is(err, domainerrors.ErrTie) {
		t.Fatalf("expected tie, got %v", err)
	}
}

func TestWinnerReportsMajority(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, session := seed(t, start)
	uc := StatusUseCase{Sessions: store, Clock: &fixedClock{now: session.CommitDeadline}}
	ctx := context.Background()

	first := commit(t, store, entities.ChoiceTwo, "x", start)
	second := commit(t, store, entities.ChoiceTwo, "y", start)
	for _, commitment := range []entities.Commitment{first, second} {
		if _, _, err := store.RevealCommit(ctx, "s-1", commitment, entities.ChoiceTwo, "", session.CommitDeadline); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}
	}

	winner, err := uc.Winner(ctx, "s-1")
	if err != nil {
		t.Fatalf("winner failed: %v", err)
	}
	if winner.Choice != entities.ChoiceTwo || winner.Label != "NO" || winner.Tally.Choice2 != 2 {
		t.Fatalf("unexpected winner %+v", winner)
	}

	status, err := uc.Status(ctx, "s-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Winner != entities.ChoiceTwo || status.WinnerLabel != "NO" {
		t.Fatalf("unexpected status winner %+v", status)
	}
}

func TestCommitmentQueries(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := seed(t, start)
	uc := StatusUseCase{Sessions: store, Clock: &fixedClock{now: start}}
	ctx := context.Background()

	commitment := commit(t, store, entities.ChoiceOne, "secretA", start)
	items, err := uc.Commitments(ctx, "s-1")
	if err != nil {
		t.Fatalf("commitments failed: %v", err)
	}
	if len(items) != 1 || items[0].Commitment != commitment {
		t.Fatalf("unexpected commitments %+v", items)
	}

	record, err := uc.CommitmentStatus(ctx, "s-1", commitment.String())
	if err != nil {
		t.Fatalf("commitment status failed: %v", err)
	}
	if record.Status != entities.CommitStatusCommitted {
		t.Fatalf("unexpected status %s", record.Status)
	}

	if _, err := uc.CommitmentStatus(ctx, "s-1", "0xnothex"); !errors.Is(err, domainerrors.ErrMalformedCommitment) {
		t.Fatalf("expected malformed commitment, got %v", err)
	}
	if _, err := uc.Status(ctx, "missing"); !errors.Is(err, domainerrors.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
