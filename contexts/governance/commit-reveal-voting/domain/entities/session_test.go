package entities

import (
	"testing"
	"time"

	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"

	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T) VotingSession {
	t.Helper()
	session, err := NewVotingSession("s-1", "Dogs or cats?", "YES", "NO", time.Minute, "", sessionStart)
	require.NoError(t, err)
	return session
}

func mustHash(t *testing.T, choice Choice, secret string) Commitment {
	t.Helper()
	commitment, err := HashVote(choice, secret)
	require.NoError(t, err)
	return commitment
}

func TestNewVotingSessionValidatesInput(t *testing.T) {
	cases := map[string]struct {
		id, question, label1, label2 string
		duration                     time.Duration
	}{
		"missing id":       {"", "q", "a", "b", time.Minute},
		"missing question": {"s", "  ", "a", "b", time.Minute},
		"missing label 1":  {"s", "q", "", "b", time.Minute},
		"missing label 2":  {"s", "q", "a", "", time.Minute},
		"zero duration":    {"s", "q", "a", "b", 0},
		"sub-second":       {"s", "q", "a", "b", 500 * time.Millisecond},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewVotingSession(tc.id, tc.question, tc.label1, tc.label2, tc.duration, "", sessionStart)
			require.ErrorIs(t, err, domainerrors.ErrInvalidSessionInput)
		})
	}
}

func TestNewVotingSessionOpensCommitWindow(t *testing.T) {
	session := newTestSession(t)
	require.Equal(t, sessionStart.Add(time.Minute), session.CommitDeadline)
	require.Equal(t, Tally{}, session.Tally)
	require.Zero(t, session.CommitCount)
	require.Equal(t, PhaseVoting, session.PhaseAt(sessionStart))
	require.Equal(t, time.Minute, session.TimeRemaining(sessionStart))
}

func TestPhaseAtBoundaries(t *testing.T) {
	require.Equal(t, PhasePreVoting, VotingSession{}.PhaseAt(sessionStart))

	session := newTestSession(t)
	deadline := session.CommitDeadline
	require.Equal(t, PhaseVoting, session.PhaseAt(deadline.Add(-time.Nanosecond)))
	// Zero commitments: the deadline goes straight to Revealed.
	require.Equal(t, PhaseRevealed, session.PhaseAt(deadline))

	_, err := session.AcceptCommit(mustHash(t, ChoiceOne, "a"), "v1", sessionStart)
	require.NoError(t, err)
	require.Equal(t, PhaseRevealing, session.PhaseAt(deadline))
	require.Zero(t, session.TimeRemaining(deadline))
	require.Zero(t, session.TimeRemaining(deadline.Add(time.Hour)))
}

func TestAcceptCommitAssignsPositions(t *testing.T) {
	session := newTestSession(t)
	first, err := session.AcceptCommit(mustHash(t, ChoiceOne, "a"), " voter-1 ", sessionStart)
	require.NoError(t, err)
	second, err := session.AcceptCommit(mustHash(t, ChoiceTwo, "b"), "voter-2", sessionStart.Add(time.Second))
	require.NoError(t, err)

	require.Equal(t, 1, first.Position)
	require.Equal(t, 2, second.Position)
	require.Equal(t, "voter-1", first.VoterID)
	require.Equal(t, CommitStatusCommitted, first.Status)
	require.Equal(t, 2, session.CommitCount)
}

func TestAcceptCommitRejectsAfterDeadline(t *testing.T) {
	session := newTestSession(t)
	_, err := session.AcceptCommit(mustHash(t, ChoiceOne, "a"), "v", session.CommitDeadline)
	require.ErrorIs(t, err, domainerrors.ErrWrongPhase)
	require.Zero(t, session.CommitCount)
}

func TestAcceptCommitRejectsZeroCommitment(t *testing.T) {
	session := newTestSession(t)
	_, err := session.AcceptCommit(Commitment{}, "v", sessionStart)
	require.ErrorIs(t, err, domainerrors.ErrMalformedCommitment)
}

func TestApplyRevealCountsOnce(t *testing.T) {
	session := newTestSession(t)
	record, err := session.AcceptCommit(mustHash(t, ChoiceOne, "a"), "v", sessionStart)
	require.NoError(t, err)

	revealAt := session.CommitDeadline
	require.NoError(t, session.ApplyReveal(&record, ChoiceOne, "v", revealAt))
	require.Equal(t, CommitStatusRevealed, record.Status)
	require.Equal(t, ChoiceOne, record.Choice)
	require.NotNil(t, record.RevealedAt)
	require.Equal(t, Tally{Choice1: 1}, session.Tally)
	require.True(t, session.Complete(revealAt))

	err = session.ApplyReveal(&record, ChoiceOne, "v", revealAt)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyRevealed)
	require.Equal(t, Tally{Choice1: 1}, session.Tally)
	require.Equal(t, 1, session.RevealedCount)
}

func TestCheckRevealOrdersPhaseBeforeChoice(t *testing.T) {
	session := newTestSession(t)
	require.ErrorIs(t, session.CheckReveal(sessionStart, ChoiceNone), domainerrors.ErrWrongPhase)
	require.ErrorIs(t, session.CheckReveal(session.CommitDeadline, 3), domainerrors.ErrInvalidChoice)
	require.NoError(t, session.CheckReveal(session.CommitDeadline, ChoiceTwo))
}

func TestWinner(t *testing.T) {
	session := newTestSession(t)

	_, _, err := session.Winner()
	require.ErrorIs(t, err, domainerrors.ErrTie)

	session.Tally = Tally{Choice1: 1, Choice2: 2}
	choice, label, err := session.Winner()
	require.NoError(t, err)
	require.Equal(t, ChoiceTwo, choice)
	require.Equal(t, "NO", label)

	session.Tally = Tally{Choice1: 3, Choice2: 2}
	choice, label, err = session.Winner()
	require.NoError(t, err)
	require.Equal(t, ChoiceOne, choice)
	require.Equal(t, "YES", label)

	session.Tally = Tally{Choice1: 2, Choice2: 2}
	_, _, err = session.Winner()
	require.ErrorIs(t, err, domainerrors.ErrTie)
}

func TestTallyHelpers(t *testing.T) {
	tally := Tally{Choice1: 4, Choice2: 1}
	require.Equal(t, 4, tally.For(ChoiceOne))
	require.Equal(t, 1, tally.For(ChoiceTwo))
	require.Zero(t, tally.For(ChoiceNone))
	require.Equal(t, 5, tally.Total())
}
