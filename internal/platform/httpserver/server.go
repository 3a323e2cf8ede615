package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	commitrevealvoting "commitreveal/contexts/governance/commit-reveal-voting"
	votingerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	votinghttp "commitreveal/contexts/governance/commit-reveal-voting/transport/http"
	_ "commitreveal/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	moduleName      = "internal/platform/httpserver"
	maxRequestBytes = 1 << 20
)

type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	addr    string
	voting  commitrevealvoting.Module
	metrics http.Handler
}

// New builds the API server. metrics may be nil, in which case /metrics is
// not registered.
func New(
	voting commitrevealvoting.Module,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		voting:  voting,
		metrics: metrics,
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed mux, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", moduleName,
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", moduleName,
		"layer", "platform",
		"addr", s.addr,
	)
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /v1/voting/sessions", s.handleStartVoting)
	s.mux.HandleFunc("GET /v1/voting/sessions/{session_id}", s.handleGetStatus)
	s.mux.HandleFunc("POST /v1/voting/sessions/{session_id}/commits", s.handleCommit)
	s.mux.HandleFunc("GET /v1/voting/sessions/{session_id}/commits", s.handleListCommitments)
	s.mux.HandleFunc("GET /v1/voting/sessions/{session_id}/commits/{commit_hash}", s.handleGetCommitment)
	s.mux.HandleFunc("POST /v1/voting/sessions/{session_id}/reveals", s.handleReveal)
	s.mux.HandleFunc("GET /v1/voting/sessions/{session_id}/winner", s.handleGetWinner)
}

func (s *Server) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.StartVotingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.StartVotingHandler(
		r.Context(),
		voterID(r),
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		req,
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetStatusHandler(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CommitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.CommitHandler(r.Context(), r.PathValue("session_id"), voterID(r), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListCommitmentsHandler(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetCommitmentHandler(
		r.Context(),
		r.PathValue("session_id"),
		r.PathValue("commit_hash"),
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.RevealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.RevealHandler(r.Context(), r.PathValue("session_id"), voterID(r), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWinner(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetWinnerHandler(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrSessionNotFound):
		writeVotingError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrWrongPhase):
		writeVotingError(w, http.StatusConflict, "wrong_phase", err.Error())
	case errors.Is(err, votingerrors.ErrDuplicateCommit):
		writeVotingError(w, http.StatusConflict, "duplicate_commit", err.Error())
	case errors.Is(err, votingerrors.ErrAlreadyRevealed):
		writeVotingError(w, http.StatusConflict, "already_revealed", err.Error())
	case errors.Is(err, votingerrors.ErrTie):
		writeVotingError(w, http.StatusConflict, "tie", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyConflict):
		writeVotingError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, votingerrors.ErrConflict):
		writeVotingError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, votingerrors.ErrUnknownCommitment):
		writeVotingError(w, http.StatusUnprocessableEntity, "unknown_commitment", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidChoice):
		writeVotingError(w, http.StatusBadRequest, "invalid_choice", err.Error())
	case errors.Is(err, votingerrors.ErrMalformedCommitment):
		writeVotingError(w, http.StatusBadRequest, "malformed_commitment", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidSessionInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_session_input", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyKeyRequired):
		writeVotingError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func voterID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Voter-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}
