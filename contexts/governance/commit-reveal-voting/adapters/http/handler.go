package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "commitreveal/contexts/governance/commit-reveal-voting/application"
	"commitreveal/contexts/governance/commit-reveal-voting/application/commands"
	"commitreveal/contexts/governance/commit-reveal-voting/application/queries"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	httptransport "commitreveal/contexts/governance/commit-reveal-voting/transport/http"
)

type Handler struct {
	Voting commands.VotingUseCase
	Status queries.StatusUseCase
	Logger *slog.Logger
}

// StartVotingHandler godoc
// @Summary Start a voting session
// @Description Opens a new commit-reveal session under a fresh handle. The commit window closes duration_seconds after creation.
// @Tags commit-reveal-voting
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param X-Voter-Id header string false "Caller identity used for metering"
// @Param request body httptransport.StartVotingRequest true "Session definition"
// @Success 201 {object} httptransport.SessionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions [post]
func (h Handler) StartVotingHandler(
	ctx context.Context,
	requestedBy string,
	idempotencyKey string,
	req httptransport.StartVotingRequest,
) (httptransport.SessionResponse, error) {
	result, err := h.Voting.StartVoting(ctx, commands.StartVotingCommand{
		IdempotencyKey:  idempotencyKey,
		Question:        req.Question,
		Choice1Label:    req.Choice1Label,
		Choice2Label:    req.Choice2Label,
		DurationSeconds: req.DurationSeconds,
		Supersedes:      req.Supersedes,
		RequestedBy:     requestedBy,
	})
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	resp := mapSession(result.Session)
	resp.Replayed = result.Replayed
	return resp, nil
}

// GetStatusHandler godoc
// @Summary Get session status
// @Description Returns the derived phase, counters, tally and, once every vote is revealed, the winner.
// @Tags commit-reveal-voting
// @Produce json
// @Param session_id path string true "Session handle"
// @Success 200 {object} httptransport.StatusResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id} [get]
func (h Handler) GetStatusHandler(ctx context.Context, sessionID string) (httptransport.StatusResponse, error) {
	status, err := h.Status.Status(ctx, sessionID)
	if err != nil {
		return httptransport.StatusResponse{}, err
	}
	return httptransport.StatusResponse{
		SessionResponse:      mapSession(status.Session),
		Phase:                string(status.Phase),
		TimeRemainingSeconds: int64(status.TimeRemaining / time.Second),
		Winner:               status.WinnerLabel,
		Tied:                 status.Tied,
	}, nil
}

// CommitHandler godoc
// @Summary Commit a vote
// @Description Submits keccak256(choice digit || secret) while the commit window is open.
// @Tags commit-reveal-voting
// @Accept json
// @Produce json
// @Param session_id path string true "Session handle"
// @Param X-Voter-Id header string false "Caller identity used for metering"
// @Param request body httptransport.CommitRequest true "Commitment"
// @Success 201 {object} httptransport.CommitResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id}/commits [post]
func (h Handler) CommitHandler(
	ctx context.Context,
	sessionID string,
	voterID string,
	req httptransport.CommitRequest,
) (httptransport.CommitResponse, error) {
	result, err := h.Voting.Commit(ctx, commands.CommitCommand{
		SessionID:  sessionID,
		Commitment: req.CommitHash,
		VoterID:    voterID,
	})
	if err != nil {
		return httptransport.CommitResponse{}, err
	}
	return httptransport.CommitResponse{
		SessionID:  result.Session.SessionID,
		CommitHash: result.Record.Commitment.String(),
		Position:   result.Record.Position,
		Status:     string(result.Record.Status),
		VotesCast:  result.Session.CommitCount,
	}, nil
}

// RevealHandler godoc
// @Summary Reveal a vote
// @Description Discloses the choice and secret behind an earlier commitment once the commit window has closed.
// @Tags commit-reveal-voting
// @Accept json
// @Produce json
// @Param session_id path string true "Session handle"
// @Param X-Voter-Id header string false "Caller identity used for metering"
// @Param request body httptransport.RevealRequest true "Plaintext vote"
// @Success 200 {object} httptransport.RevealResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id}/reveals [post]
func (h Handler) RevealHandler(
	ctx context.Context,
	sessionID string,
	voterID string,
	req httptransport.RevealRequest,
) (httptransport.RevealResponse, error) {
	result, err := h.Voting.Reveal(ctx, commands.RevealCommand{
		SessionID: sessionID,
		Choice:    req.Choice,
		Secret:    req.Secret,
		VoterID:   voterID,
	})
	if err != nil {
		return httptransport.RevealResponse{}, err
	}
	return httptransport.RevealResponse{
		SessionID:     result.Session.SessionID,
		CommitHash:    result.Record.Commitment.String(),
		Choice:        int(result.Record.Choice),
		ChoiceLabel:   result.Session.Label(result.Record.Choice),
		Tally:         mapTally(result.Session.Tally),
		VotesRevealed: result.Session.RevealedCount,
		VotesCast:     result.Session.CommitCount,
		Completed:     result.Completed,
	}, nil
}

// ListCommitmentsHandler godoc
// @Summary List commitments
// @Description Returns every commitment of the session in commit order with its status.
// @Tags commit-reveal-voting
// @Produce json
// @Param session_id path string true "Session handle"
// @Success 200 {object} httptransport.CommitmentsResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id}/commits [get]
func (h Handler) ListCommitmentsHandler(ctx context.Context, sessionID string) (httptransport.CommitmentsResponse, error) {
	records, err := h.Status.Commitments(ctx, sessionID)
	if err != nil {
		return httptransport.CommitmentsResponse{}, err
	}
	items := make([]httptransport.CommitmentItem, 0, len(records))
	for _, record := range records {
		items = append(items, mapCommitment(record))
	}
	return httptransport.CommitmentsResponse{
		SessionID: sessionID,
		Items:     items,
	}, nil
}

// GetCommitmentHandler godoc
// @Summary Get commitment status
// @Tags commit-reveal-voting
// @Produce json
// @Param session_id path string true "Session handle"
// @Param commit_hash path string true "0x-prefixed commitment"
// @Success 200 {object} httptransport.CommitmentItem
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id}/commits/{commit_hash} [get]
func (h Handler) GetCommitmentHandler(
	ctx context.Context,
	sessionID string,
	commitHash string,
) (httptransport.CommitmentItem, error) {
	record, err := h.Status.CommitmentStatus(ctx, sessionID, commitHash)
	if err != nil {
		return httptransport.CommitmentItem{}, err
	}
	return mapCommitment(record), nil
}

// GetWinnerHandler godoc
// @Summary Get the winning choice
// @Description Returns the label with the strictly greater tally. Ties fail with 409.
// @Tags commit-reveal-voting
// @Produce json
// @Param session_id path string true "Session handle"
// @Success 200 {object} httptransport.WinnerResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/voting/sessions/{session_id}/winner [get]
func (h Handler) GetWinnerHandler(ctx context.Context, sessionID string) (httptransport.WinnerResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	winner, err := h.Status.Winner(ctx, sessionID)
	if err != nil {
		logger.Info("winner unavailable",
			"event", "http_get_winner_unavailable",
			"module", application.ModuleName,
			"layer", "transport",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return httptransport.WinnerResponse{}, err
	}
	return httptransport.WinnerResponse{
		SessionID: sessionID,
		Choice:    int(winner.Choice),
		Label:     winner.Label,
		Tally:     mapTally(winner.Tally),
	}, nil
}

func mapSession(session entities.VotingSession) httptransport.SessionResponse {
	return httptransport.SessionResponse{
		SessionID:      session.SessionID,
		Question:       session.Question,
		Choice1Label:   session.Choice1Label,
		Choice2Label:   session.Choice2Label,
		CommitDeadline: session.CommitDeadline.UTC().Format(time.RFC3339),
		Supersedes:     session.Supersedes,
		Tally:          mapTally(session.Tally),
		VotesCast:      session.CommitCount,
		VotesRevealed:  session.RevealedCount,
	}
}

func mapTally(tally entities.Tally) httptransport.TallyResponse {
	return httptransport.TallyResponse{
		Choice1: tally.Choice1,
		Choice2: tally.Choice2,
	}
}

func mapCommitment(record entities.CommitRecord) httptransport.CommitmentItem {
	item := httptransport.CommitmentItem{
		CommitHash:  record.Commitment.String(),
		Position:    record.Position,
		Status:      string(record.Status),
		Choice:      int(record.Choice),
		CommittedAt: record.CommittedAt.UTC().Format(time.RFC3339),
	}
	if record.RevealedAt != nil {
		item.RevealedAt = record.RevealedAt.UTC().Format(time.RFC3339)
	}
	return item
}
