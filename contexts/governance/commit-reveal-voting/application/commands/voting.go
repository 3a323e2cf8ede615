package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	application "commitreveal/contexts/governance/commit-reveal-voting/application"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

// maxDurationSeconds is the longest commit window that still fits in a
// time.Duration.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

// StartVotingCommand opens a new session. Supersedes optionally names the
// session this one replaces; it must already be fully revealed.
type StartVotingCommand struct {
	IdempotencyKey  string
	Question        string
	Choice1Label    string
	Choice2Label    string
	DurationSeconds int64
	Supersedes      string
	RequestedBy     string
}

type StartVotingResult struct {
	Session  entities.VotingSession
	Replayed bool
}

// CommitCommand carries a precomputed commitment. The engine never sees the
// choice or secret at this point.
type CommitCommand struct {
	SessionID  string
	Commitment string
	VoterID    string
}

type CommitResult struct {
	Session entities.VotingSession
	Record  entities.CommitRecord
}

type RevealCommand struct {
	SessionID string
	Choice    int
	Secret    string
	VoterID   string
}

// RevealResult reports the updated tally. Completed is set on the reveal that
// moves the session into the Revealed phase.
type RevealResult struct {
	Session   entities.VotingSession
	Record    entities.CommitRecord
	Completed bool
}

// VotingUseCase orchestrates the commit-reveal engine: phase guards, commitment
// verification, idempotent session creation and outbox event emission.
type VotingUseCase struct {
	Sessions       ports.SessionRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Metrics        ports.VotingMetrics
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// StartVoting creates a fresh session under a new handle. Prior sessions are
// never overwritten. Replays of the same idempotency key return the session
// created by the first call.
func (uc VotingUseCase) StartVoting(ctx context.Context, cmd StartVotingCommand) (StartVotingResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("voting session start processing started",
		"event", "voting_session_start_started",
		"module", application.ModuleName,
		"layer", "application",
		"requested_by", strings.TrimSpace(cmd.RequestedBy),
		"supersedes", strings.TrimSpace(cmd.Supersedes),
	)
	if strings.TrimSpace(cmd.Question) == "" ||
		strings.TrimSpace(cmd.Choice1Label) == "" ||
		strings.TrimSpace(cmd.Choice2Label) == "" ||
		cmd.DurationSeconds <= 0 ||
		cmd.DurationSeconds > maxDurationSeconds {
		logger.Warn("voting session start validation failed",
			"event", "voting_session_start_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"duration_seconds", cmd.DurationSeconds,
		)
		uc.rejected("start", domainerrors.ErrInvalidSessionInput)
		return StartVotingResult{}, domainerrors.ErrInvalidSessionInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		logger.Warn("voting session start idempotency key missing",
			"event", "voting_session_start_idempotency_missing",
			"module", application.ModuleName,
			"layer", "application",
		)
		return StartVotingResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	key := strings.TrimSpace(cmd.IdempotencyKey)
	requestHash := hashStartVotingCommand(cmd)
	if record, found, err := uc.Idempotency.Get(ctx, key, now); err != nil {
		logger.Error("voting session start idempotency lookup failed",
			"event", "voting_session_start_idempotency_lookup_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return StartVotingResult{}, err
	} else if found {
		return uc.replayStart(ctx, record, requestHash)
	}

	if supersedes := strings.TrimSpace(cmd.Supersedes); supersedes != "" {
		previous, err := uc.Sessions.GetSession(ctx, supersedes)
		if err != nil {
			return StartVotingResult{}, err
		}
		if phase := previous.PhaseAt(now); phase != entities.PhaseRevealed {
			logger.Warn("voting session start rejected: superseded session still open",
				"event", "voting_session_start_supersede_rejected",
				"module", application.ModuleName,
				"layer", "application",
				"supersedes", supersedes,
				"phase", string(phase),
			)
			uc.rejected("start", domainerrors.ErrWrongPhase)
			return StartVotingResult{}, domainerrors.ErrWrongPhase
		}
	}

	sessionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return StartVotingResult{}, err
	}
	session, err := entities.NewVotingSession(
		sessionID,
		cmd.Question,
		cmd.Choice1Label,
		cmd.Choice2Label,
		time.Duration(cmd.DurationSeconds)*time.Second,
		cmd.Supersedes,
		now,
	)
	if err != nil {
		uc.rejected("start", err)
		return StartVotingResult{}, err
	}

	// The key is reserved before the session exists so a concurrent start
	// with the same key replays this session instead of creating its own.
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		SessionID:   session.SessionID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
			return StartVotingResult{}, err
		}
		record, found, getErr := uc.Idempotency.Get(ctx, key, now)
		if getErr != nil {
			return StartVotingResult{}, getErr
		}
		if !found {
			return StartVotingResult{}, err
		}
		return uc.replayStart(ctx, record, requestHash)
	}
	if err := uc.Sessions.CreateSession(ctx, session); err != nil {
		if releaseErr := uc.Idempotency.Delete(ctx, key); releaseErr != nil {
			logger.Error("voting session start idempotency release failed",
				"event", "voting_session_start_idempotency_release_failed",
				"module", application.ModuleName,
				"layer", "application",
				"session_id", session.SessionID,
				"error", releaseErr.Error(),
			)
		}
		return StartVotingResult{}, err
	}
	if err := uc.appendEvent(ctx, EventSessionStarted, session.SessionID, now, map[string]any{
		"session_id":      session.SessionID,
		"question":        session.Question,
		"choice_1_label":  session.Choice1Label,
		"choice_2_label":  session.Choice2Label,
		"commit_deadline": session.CommitDeadline.Format(time.RFC3339),
		"supersedes":      session.Supersedes,
		"occurred_at":     now.Format(time.RFC3339),
	}); err != nil {
		return StartVotingResult{}, err
	}
	if uc.Metrics != nil {
		uc.Metrics.SessionStarted()
	}

	logger.Info("voting session started",
		"event", "voting_session_started",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", session.SessionID,
		"commit_deadline", session.CommitDeadline.Format(time.RFC3339),
		"supersedes", session.Supersedes,
	)
	return StartVotingResult{Session: session}, nil
}

// replayStart answers a start whose idempotency key is already taken. A
// reservation whose session is not stored yet belongs to a start still in
// flight and is reported as a conflict.
func (uc VotingUseCase) replayStart(
	ctx context.Context,
	record ports.IdempotencyRecord,
	requestHash string,
) (StartVotingResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if record.RequestHash != requestHash {
		logger.Warn("voting session start idempotency conflict",
			"event", "voting_session_start_idempotency_conflict",
			"module", application.ModuleName,
			"layer", "application",
			"session_id", record.SessionID,
		)
		return StartVotingResult{}, domainerrors.ErrIdempotencyConflict
	}
	session, err := uc.Sessions.GetSession(ctx, record.SessionID)
	if errors.Is(err, domainerrors.ErrSessionNotFound) {
		return StartVotingResult{}, domainerrors.ErrConflict
	}
	if err != nil {
		return StartVotingResult{}, err
	}
	logger.Info("voting session start replayed",
		"event", "voting_session_start_replayed",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", session.SessionID,
	)
	return StartVotingResult{Session: session, Replayed: true}, nil
}

// Commit records a commitment while the commit window is open. Duplicate
// commitments are rejected so each hash counts at most once.
func (uc VotingUseCase) Commit(ctx context.Context, cmd CommitCommand) (CommitResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	sessionID := strings.TrimSpace(cmd.SessionID)
	logger.Info("vote commit processing started",
		"event", "voting_commit_started",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", sessionID,
		"voter_id", strings.TrimSpace(cmd.VoterID),
	)
	commitment, err := entities.ParseCommitment(cmd.Commitment)
	if err != nil || commitment.IsZero() {
		logger.Warn("vote commit validation failed",
			"event", "voting_commit_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"session_id", sessionID,
		)
		uc.rejected("commit", domainerrors.ErrMalformedCommitment)
		return CommitResult{}, domainerrors.ErrMalformedCommitment
	}

	now := uc.now()
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		uc.rejected("commit", err)
		return CommitResult{}, err
	}
	if err := session.CheckCommit(now); err != nil {
		logger.Warn("vote commit rejected: commit window closed",
			"event", "voting_commit_phase_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"session_id", sessionID,
			"phase", string(session.PhaseAt(now)),
		)
		uc.rejected("commit", err)
		return CommitResult{}, err
	}

	session, record, err := uc.Sessions.AppendCommit(ctx, sessionID, commitment, cmd.VoterID, now)
	if err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateCommit) {
			logger.Warn("vote commit rejected: duplicate commitment",
				"event", "voting_commit_duplicate",
				"module", application.ModuleName,
				"layer", "application",
				"session_id", sessionID,
				"commit_hash", commitment.String(),
			)
		}
		uc.rejected("commit", err)
		return CommitResult{}, err
	}
	if err := uc.appendEvent(ctx, EventVoteCommitted, sessionID, now, map[string]any{
		"session_id":  sessionID,
		"commit_hash": record.Commitment.String(),
		"position":    record.Position,
		"voter_id":    record.VoterID,
		"votes_cast":  session.CommitCount,
		"occurred_at": now.Format(time.RFC3339),
	}); err != nil {
		return CommitResult{}, err
	}
	if uc.Metrics != nil {
		uc.Metrics.CommitAccepted()
	}

	logger.Info("vote committed",
		"event", "voting_commit_accepted",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", sessionID,
		"commit_hash", record.Commitment.String(),
		"position", record.Position,
	)
	return CommitResult{Session: session, Record: record}, nil
}

// Reveal verifies (choice, secret) against the session's commitments and
// counts the vote. A commitment is counted at most once.
func (uc VotingUseCase) Reveal(ctx context.Context, cmd RevealCommand) (RevealResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	sessionID := strings.TrimSpace(cmd.SessionID)
	logger.Info("vote reveal processing started",
		"event", "voting_reveal_started",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", sessionID,
		"voter_id", strings.TrimSpace(cmd.VoterID),
	)

	now := uc.now()
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		uc.rejected("reveal", err)
		return RevealResult{}, err
	}
	choice := entities.Choice(cmd.Choice)
	if err := session.CheckReveal(now, choice); err != nil {
		logger.Warn("vote reveal rejected",
			"event", "voting_reveal_precondition_failed",
			"module", application.ModuleName,
			"layer", "application",
			"session_id", sessionID,
			"phase", string(session.PhaseAt(now)),
			"choice", cmd.Choice,
			"error", err.Error(),
		)
		uc.rejected("reveal", err)
		return RevealResult{}, err
	}

	commitment, err := entities.HashVote(choice, cmd.Secret)
	if err != nil {
		uc.rejected("reveal", err)
		return RevealResult{}, err
	}
	session, record, err := uc.Sessions.RevealCommit(ctx, sessionID, commitment, choice, cmd.VoterID, now)
	if err != nil {
		logger.Warn("vote reveal rejected",
			"event", "voting_reveal_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"session_id", sessionID,
			"commit_hash", commitment.String(),
			"error", err.Error(),
		)
		uc.rejected("reveal", err)
		return RevealResult{}, err
	}

	completed := session.Complete(now)
	if err := uc.appendEvent(ctx, EventVoteRevealed, sessionID, now, map[string]any{
		"session_id":     sessionID,
		"commit_hash":    record.Commitment.String(),
		"choice":         int(record.Choice),
		"choice_label":   session.Label(record.Choice),
		"votes_choice_1": session.Tally.Choice1,
		"votes_choice_2": session.Tally.Choice2,
		"revealed_count": session.RevealedCount,
		"votes_cast":     session.CommitCount,
		"occurred_at":    now.Format(time.RFC3339),
	}); err != nil {
		return RevealResult{}, err
	}
	if completed {
		if err := uc.appendEvent(ctx, EventSessionRevealed, sessionID, now, map[string]any{
			"session_id":     sessionID,
			"votes_choice_1": session.Tally.Choice1,
			"votes_choice_2": session.Tally.Choice2,
			"votes_cast":     session.CommitCount,
			"occurred_at":    now.Format(time.RFC3339),
		}); err != nil {
			return RevealResult{}, err
		}
	}
	if uc.Metrics != nil {
		uc.Metrics.RevealAccepted(record.Choice)
	}

	logger.Info("vote revealed",
		"event", "voting_reveal_accepted",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", sessionID,
		"commit_hash", record.Commitment.String(),
		"choice", int(record.Choice),
		"revealed_count", session.RevealedCount,
		"votes_cast", session.CommitCount,
		"completed", completed,
	)
	return RevealResult{Session: session, Record: record, Completed: completed}, nil
}

func (uc VotingUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc VotingUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc VotingUseCase) rejected(operation string, err error) {
	if uc.Metrics == nil || err == nil {
		return
	}
	uc.Metrics.OperationRejected(operation, RejectionReason(err))
}

// RejectionReason maps an engine error to a stable metric label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, domainerrors.ErrDuplicateCommit):
		return "duplicate_commit"
	case errors.Is(err, domainerrors.ErrUnknownCommitment):
		return "unknown_commitment"
	case errors.Is(err, domainerrors.ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, domainerrors.ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, domainerrors.ErrMalformedCommitment):
		return "malformed_commitment"
	case errors.Is(err, domainerrors.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domainerrors.ErrInvalidSessionInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

func (uc VotingUseCase) appendEvent(
	ctx context.Context,
	eventType string,
	sessionID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newVotingEnvelope(eventID, eventType, sessionID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func hashStartVotingCommand(cmd StartVotingCommand) string {
	payload := map[string]string{
		"question":         strings.TrimSpace(cmd.Question),
		"choice_1_label":   strings.TrimSpace(cmd.Choice1Label),
		"choice_2_label":   strings.TrimSpace(cmd.Choice2Label),
		"duration_seconds": strconv.FormatInt(cmd.DurationSeconds, 10),
		"supersedes":       strings.TrimSpace(cmd.Supersedes),
		"op":               "start_voting",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
