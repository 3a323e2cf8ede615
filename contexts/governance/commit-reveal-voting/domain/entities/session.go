package entities

import (
	"strings"
	"time"

	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
)

type Choice int

const (
	ChoiceNone Choice = 0
	ChoiceOne  Choice = 1
	ChoiceTwo  Choice = 2
)

func (c Choice) Valid() bool {
	return c == ChoiceOne || c == ChoiceTwo
}

// Phase is derived from the session and the caller-supplied time. It is never
// stored.
type Phase string

const (
	PhasePreVoting Phase = "pre_voting"
	PhaseVoting    Phase = "voting"
	PhaseRevealing Phase = "revealing"
	PhaseRevealed  Phase = "revealed"
)

type CommitStatus string

const (
	CommitStatusCommitted CommitStatus = "committed"
	CommitStatusRevealed  CommitStatus = "revealed"
)

type Tally struct {
	Choice1 int
	Choice2 int
}

func (t Tally) For(choice Choice) int {
	switch choice {
	case ChoiceOne:
		return t.Choice1
	case ChoiceTwo:
		return t.Choice2
	default:
		return 0
	}
}

func (t Tally) Total() int {
	return t.Choice1 + t.Choice2
}

// VotingSession is one run of the commit-reveal protocol. Commit records are
// kept by the store next to the session; the session carries the counters
// the phase derivation needs.
type VotingSession struct {
	SessionID      string
	Question       string
	Choice1Label   string
	Choice2Label   string
	CommitDeadline time.Time
	Supersedes     string
	Tally          Tally
	CommitCount    int
	RevealedCount  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CommitRecord tracks a single commitment. Position is the 1-based insertion
// order within the session.
type CommitRecord struct {
	SessionID   string
	Commitment  Commitment
	Position    int
	Status      CommitStatus
	Choice      Choice
	VoterID     string
	RevealedBy  string
	CommittedAt time.Time
	RevealedAt  *time.Time
}

// NewVotingSession validates creation input and opens the commit window at
// now.
func NewVotingSession(
	sessionID string,
	question string,
	choice1Label string,
	choice2Label string,
	duration time.Duration,
	supersedes string,
	now time.Time,
) (VotingSession, error) {
	question = strings.TrimSpace(question)
	choice1Label = strings.TrimSpace(choice1Label)
	choice2Label = strings.TrimSpace(choice2Label)
	if strings.TrimSpace(sessionID) == "" ||
		question == "" ||
		choice1Label == "" ||
		choice2Label == "" ||
		duration < time.Second {
		return VotingSession{}, domainerrors.ErrInvalidSessionInput
	}
	now = now.UTC()
	return VotingSession{
		SessionID:      strings.TrimSpace(sessionID),
		Question:       question,
		Choice1Label:   choice1Label,
		Choice2Label:   choice2Label,
		CommitDeadline: now.Add(duration),
		Supersedes:     strings.TrimSpace(supersedes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// PhaseAt derives the protocol phase. The reveal phase starts exactly at the
// commit deadline.
func (s VotingSession) PhaseAt(now time.Time) Phase {
	if s.SessionID == "" {
		return PhasePreVoting
	}
	if now.Before(s.CommitDeadline) {
		return PhaseVoting
	}
	if s.RevealedCount < s.CommitCount {
		return PhaseRevealing
	}
	return PhaseRevealed
}

func (s VotingSession) TimeRemaining(now time.Time) time.Duration {
	if !now.Before(s.CommitDeadline) {
		return 0
	}
	return s.CommitDeadline.Sub(now)
}

func (s VotingSession) Label(choice Choice) string {
	switch choice {
	case ChoiceOne:
		return s.Choice1Label
	case ChoiceTwo:
		return s.Choice2Label
	default:
		return ""
	}
}

// CheckCommit reports whether a commitment may be accepted at now.
func (s VotingSession) CheckCommit(now time.Time) error {
	if !now.Before(s.CommitDeadline) {
		return domainerrors.ErrWrongPhase
	}
	return nil
}

// CheckReveal reports whether a reveal of choice may be attempted at now.
// The phase is checked before the choice.
func (s VotingSession) CheckReveal(now time.Time, choice Choice) error {
	if now.Before(s.CommitDeadline) {
		return domainerrors.ErrWrongPhase
	}
	if !choice.Valid() {
		return domainerrors.ErrInvalidChoice
	}
	return nil
}

// Winner returns the choice with the strictly greater tally. Equal tallies,
// including an empty session, are reported as ErrTie.
func (s VotingSession) Winner() (Choice, string, error) {
	switch {
	case s.Tally.Choice1 > s.Tally.Choice2:
		return ChoiceOne, s.Choice1Label, nil
	case s.Tally.Choice2 > s.Tally.Choice1:
		return ChoiceTwo, s.Choice2Label, nil
	default:
		return ChoiceNone, "", domainerrors.ErrTie
	}
}

// Complete reports whether every commitment has been revealed after the
// deadline.
func (s VotingSession) Complete(now time.Time) bool {
	return s.PhaseAt(now) == PhaseRevealed
}

// AcceptCommit validates the phase and returns the record for commitment with
// the session counters advanced. Uniqueness is the caller's responsibility
// because only the store can see every existing commitment.
func (s *VotingSession) AcceptCommit(commitment Commitment, voterID string, now time.Time) (CommitRecord, error) {
	if err := s.CheckCommit(now); err != nil {
		return CommitRecord{}, err
	}
	if commitment.IsZero() {
		return CommitRecord{}, domainerrors.ErrMalformedCommitment
	}
	s.CommitCount++
	s.UpdatedAt = now.UTC()
	return CommitRecord{
		SessionID:   s.SessionID,
		Commitment:  commitment,
		Position:    s.CommitCount,
		Status:      CommitStatusCommitted,
		VoterID:     strings.TrimSpace(voterID),
		CommittedAt: now.UTC(),
	}, nil
}

// ApplyReveal flips record to Revealed and counts choice. Both changes happen
// together or not at all.
func (s *VotingSession) ApplyReveal(record *CommitRecord, choice Choice, voterID string, now time.Time) error {
	if err := s.CheckReveal(now, choice); err != nil {
		return err
	}
	if record.Status == CommitStatusRevealed {
		return domainerrors.ErrAlreadyRevealed
	}
	revealedAt := now.UTC()
	record.Status = CommitStatusRevealed
	record.Choice = choice
	record.RevealedAt = &revealedAt
	record.RevealedBy = strings.TrimSpace(voterID)

	if choice == ChoiceOne {
		s.Tally.Choice1++
	} else {
		s.Tally.Choice2++
	}
	s.RevealedCount++
	s.UpdatedAt = revealedAt
	return nil
}
