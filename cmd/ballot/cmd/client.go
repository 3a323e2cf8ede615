package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	votinghttp "commitreveal/contexts/governance/commit-reveal-voting/transport/http"

	"github.com/cenkalti/backoff/v4"
)

// apiError is a non-2xx answer from the voting API.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("voting api returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isCode reports whether err is an apiError carrying code.
func isCode(err error, code string) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type client struct {
	baseURL    string
	voterID    string
	httpClient *http.Client
	maxRetries uint64
}

func newClient(baseURL string, voterID string, maxRetries uint64) *client {
	return &client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		voterID:    strings.TrimSpace(voterID),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: maxRetries,
	}
}

func (c *client) StartVoting(
	ctx context.Context,
	idempotencyKey string,
	req votinghttp.StartVotingRequest,
) (votinghttp.SessionResponse, error) {
	var resp votinghttp.SessionResponse
	err := c.do(ctx, http.MethodPost, "/v1/voting/sessions", req, &resp, map[string]string{
		"Idempotency-Key": idempotencyKey,
	})
	return resp, err
}

func (c *client) Status(ctx context.Context, sessionID string) (votinghttp.StatusResponse, error) {
	var resp votinghttp.StatusResponse
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &resp, nil)
	return resp, err
}

// Commit submits a commitment. A duplicate_commit answer to a retried call
// means an earlier attempt was stored after its response was lost, so the
// stored commitment is returned instead of the error.
func (c *client) Commit(ctx context.Context, sessionID string, commitHash string) (votinghttp.CommitResponse, error) {
	var resp votinghttp.CommitResponse
	attempts, err := c.send(ctx, http.MethodPost, sessionPath(sessionID, "/commits"), votinghttp.CommitRequest{
		CommitHash: commitHash,
	}, &resp, nil)
	if err == nil || attempts < 2 || !isCode(err, "duplicate_commit") {
		return resp, err
	}
	stored, lookupErr := c.Commitment(ctx, sessionID, commitHash)
	if lookupErr != nil {
		return resp, err
	}
	return votinghttp.CommitResponse{
		SessionID:  sessionID,
		CommitHash: stored.CommitHash,
		Position:   stored.Position,
		Status:     stored.Status,
	}, nil
}

func (c *client) Commitment(ctx context.Context, sessionID string, commitHash string) (votinghttp.CommitmentItem, error) {
	var resp votinghttp.CommitmentItem
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/commits/"+url.PathEscape(commitHash)), nil, &resp, nil)
	return resp, err
}

func (c *client) Reveal(ctx context.Context, sessionID string, choice int, secret string) (votinghttp.RevealResponse, error) {
	var resp votinghttp.RevealResponse
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/reveals"), votinghttp.RevealRequest{
		Choice: choice,
		Secret: secret,
	}, &resp, nil)
	return resp, err
}

func (c *client) Winner(ctx context.Context, sessionID string) (votinghttp.WinnerResponse, error) {
	var resp votinghttp.WinnerResponse
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/winner"), nil, &resp, nil)
	return resp, err
}

func (c *client) Commitments(ctx context.Context, sessionID string) (votinghttp.CommitmentsResponse, error) {
	var resp votinghttp.CommitmentsResponse
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/commits"), nil, &resp, nil)
	return resp, err
}

func (c *client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
	headers map[string]string,
) error {
	_, err := c.send(ctx, method, path, body, out, headers)
	return err
}

// send performs one API call, retrying transport failures and 5xx answers
// with exponential backoff, and reports how many attempts were made. Client
// errors are returned immediately.
func (c *client) send(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
	headers map[string]string,
) (int, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 15 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.voterID != "" {
			req.Header.Set("X-Voter-Id", c.voterID)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 300 {
			apiErr := &apiError{Status: resp.StatusCode}
			var decoded votinghttp.ErrorResponse
			if json.Unmarshal(raw, &decoded) == nil {
				apiErr.Code = decoded.Code
				apiErr.Message = decoded.Message
			}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}, retry)
	return attempts, err
}

func sessionPath(sessionID string, suffix string) string {
	return "/v1/voting/sessions/" + url.PathEscape(strings.TrimSpace(sessionID)) + suffix
}
