package queries

import (
	"context"
	"errors"
	"strings"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

// SessionStatus is the read model behind status reporting. Winner is only
// populated once the session is Revealed and not tied.
type SessionStatus struct {
	Session       entities.VotingSession
	Phase         entities.Phase
	TimeRemaining time.Duration
	Winner        entities.Choice
	WinnerLabel   string
	Tied          bool
}

type Winner struct {
	Choice entities.Choice
	Label  string
	Tally  entities.Tally
}

type StatusUseCase struct {
	Sessions ports.SessionRepository
	Clock    ports.Clock
}

func (uc StatusUseCase) Status(ctx context.Context, sessionID string) (SessionStatus, error) {
	session, err := uc.Sessions.GetSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return SessionStatus{}, err
	}
	now := uc.now()
	status := SessionStatus{
		Session:       session,
		Phase:         session.PhaseAt(now),
		TimeRemaining: session.TimeRemaining(now),
	}
	if status.Phase == entities.PhaseRevealed {
		choice, label, err := session.Winner()
		switch {
		case errors.Is(err, domainerrors.ErrTie):
			status.Tied = true
		case err == nil:
			status.Winner = choice
			status.WinnerLabel = label
		}
	}
	return status, nil
}

// Winner returns the label with the strictly greater tally. The phase is not
// checked; callers wanting a final answer should confirm the Revealed phase
// through Status first.
func (uc StatusUseCase) Winner(ctx context.Context, sessionID string) (Winner, error) {
	session, err := uc.Sessions.GetSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return Winner{}, err
	}
	choice, label, err := session.Winner()
	if err != nil {
		return Winner{Tally: session.Tally}, err
	}
	return Winner{Choice: choice, Label: label, Tally: session.Tally}, nil
}

// Commitments lists the session's commitments in commit order.
func (uc StatusUseCase) Commitments(ctx context.Context, sessionID string) ([]entities.CommitRecord, error) {
	return uc.Sessions.ListCommits(ctx, strings.TrimSpace(sessionID))
}

func (uc StatusUseCase) CommitmentStatus(ctx context.Context, sessionID string, rawCommitment string) (entities.CommitRecord, error) {
	commitment, err := entities.ParseCommitment(rawCommitment)
	if err != nil {
		return entities.CommitRecord{}, err
	}
	return uc.Sessions.GetCommit(ctx, strings.TrimSpace(sessionID), commitment)
}

func (uc StatusUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
