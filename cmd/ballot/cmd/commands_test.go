package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	commitrevealvoting "commitreveal/contexts/governance/commit-reveal-voting"
	"commitreveal/internal/platform/httpserver"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"
)

type cliClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *cliClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *cliClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cliHarness struct {
	t         *testing.T
	apiURL    string
	api       http.Handler
	stateFile string
	clock     *cliClock
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	clock := &cliClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	module := commitrevealvoting.NewInMemoryModule(nil, nil, nil)
	module.Store.SetClock(clock.Now)
	handler := httpserver.New(module, nil, nil, ":0").Handler()
	api := httptest.NewServer(handler)
	t.Cleanup(api.Close)

	return &cliHarness{
		t:         t,
		apiURL:    api.URL,
		api:       handler,
		stateFile: filepath.Join(home, "state", "ballot.yaml"),
		clock:     clock,
	}
}

func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runWithInput("", args...)
}

func (h *cliHarness) runWithInput(input string, args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(append([]string{"--api-url", h.apiURL, "--state-file", h.stateFile, "--retries", "0"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "ballot %s", strings.Join(args, " "))
	return out
}

func TestStatusWithoutSessionIsPreVoting(t *testing.T) {
	h := newCLIHarness(t)
	out := h.mustRun("status")
	require.Contains(t, out, "Current Phase: Pre-Voting")
	require.Contains(t, out, "ballot start")
}

func TestCommandsRequireSession(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run("commit", "--choice", "1", "--secret", "s")
	require.ErrorIs(t, err, errNoActiveSession)
}

func TestFullVotingRoundThroughCLI(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("start", "--question", "Dogs or cats?", "--choice-1-label", "DOGS", "--choice-2-label", "CATS", "--duration", "30")
	require.Contains(t, out, "Voting session")
	require.Contains(t, out, "[1] DOGS / [2] CATS")

	st, err := loadState(h.stateFile)
	require.NoError(t, err)
	sessionID := st.SessionID()
	require.NotEmpty(t, sessionID)

	out = h.mustRun("commit", "--choice", "dogs", "--secret", "alpha")
	require.Contains(t, out, "vote #1")
	out = h.mustRun("commit", "--choice", "2", "--secret", "beta")
	require.Contains(t, out, "vote #2")
	h.mustRun("commit", "--choice", "1", "--secret", "gamma")

	_, err = h.run("commit", "--choice", "1", "--secret", "alpha")
	require.True(t, isCode(err, "duplicate_commit"), "got %v", err)

	out = h.mustRun("status")
	require.Contains(t, out, "Current Phase: Voting")
	require.Contains(t, out, "Time Left in this Period: 30 seconds")
	require.Contains(t, out, "Number of Votes Committed: 3")

	_, err = h.run("reveal", "--choice", "1", "--secret", "alpha")
	require.True(t, isCode(err, "wrong_phase"), "got %v", err)

	h.clock.Advance(30 * time.Second)

	_, err = h.run("commit", "--choice", "1", "--secret", "late")
	require.Error(t, err)
	require.Contains(t, err.Error(), "voting is still in progress")

	out = h.mustRun("status")
	require.Contains(t, out, "Current Phase: Revealing")

	_, err = h.run("reveal", "--choice", "2", "--secret", "alpha")
	require.True(t, isCode(err, "unknown_commitment"), "got %v", err)

	h.mustRun("reveal", "--choice", "DOGS", "--secret", "alpha")
	h.mustRun("reveal", "--choice", "2", "--secret", "beta")
	out = h.mustRun("reveal", "--session", sessionID, "--choice", "1", "--secret", "gamma")
	require.Contains(t, out, "All votes have been revealed")

	out = h.mustRun("status")
	require.Contains(t, out, "Current Phase: Revealed")
	require.Contains(t, out, "Majority said.. DOGS")

	out = h.mustRun("winner")
	require.Contains(t, out, "Majority said.. DOGS (2 / 1)")

	out = h.mustRun("commits")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "1\t0x"))
	require.True(t, strings.HasSuffix(lines[2], "\trevealed"))

	out = h.mustRun("start", "--supersedes", sessionID)
	require.Contains(t, out, defaultQuestion)
	next, err := loadState(h.stateFile)
	require.NoError(t, err)
	require.NotEqual(t, sessionID, next.SessionID())
}

func TestWinnerReportsTie(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("start", "--duration", "5")
	h.clock.Advance(5 * time.Second)

	out := h.mustRun("winner")
	require.Contains(t, out, "tied")

	out = h.mustRun("status")
	require.Contains(t, out, "The vote is tied")
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"s-1","label":"YES","choice":1,"tally":{"choice_1":1,"choice_2":0}}`))
	}))
	defer api.Close()

	winner, err := newClient(api.URL, "", 5).Winner(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, "YES", winner.Label)
	require.EqualValues(t, 3, calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"session_not_found","message":"voting session not found"}`))
	}))
	defer api.Close()

	_, err := newClient(api.URL, "", 5).Status(context.Background(), "missing")
	require.True(t, isCode(err, "session_not_found"), "got %v", err)
	require.EqualValues(t, 1, calls.Load())
}

func TestSecretReadFromStdinWhenFlagOmitted(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("start", "--duration", "10")

	out, err := h.runWithInput("alpha\n", "commit", "--choice", "1")
	require.NoError(t, err)
	require.Contains(t, out, "vote #1")

	_, err = h.runWithInput("", "commit", "--choice", "2")
	require.ErrorIs(t, err, errSecretRequired)

	h.clock.Advance(10 * time.Second)
	out, err = h.runWithInput("alpha\n", "reveal", "--choice", "1")
	require.NoError(t, err)
	require.Contains(t, out, "All votes have been revealed")
}

func TestCommitRetryAfterLostResponseSucceeds(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("start")

	var dropped atomic.Bool
	lossy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/commits") && dropped.CompareAndSwap(false, true) {
			// The commit is stored but the caller only sees a gateway error.
			h.api.ServeHTTP(httptest.NewRecorder(), r)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		h.api.ServeHTTP(w, r)
	}))
	defer lossy.Close()

	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetArgs([]string{"--api-url", lossy.URL, "--state-file", h.stateFile, "--retries", "2",
		"commit", "--choice", "1", "--secret", "alpha"})
	require.NoError(t, root.Execute())
	require.True(t, dropped.Load())
	require.Contains(t, out.String(), "vote #1")

	out.Reset()
	root = NewRootCommand(&out)
	root.SetArgs([]string{"--api-url", h.apiURL, "--state-file", h.stateFile, "commits"})
	require.NoError(t, root.Execute())
	require.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 1)
}

func TestEnvironmentOverridesAPIURL(t *testing.T) {
	h := newCLIHarness(t)
	t.Setenv("BALLOT_API_URL", h.apiURL)

	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetArgs([]string{"--state-file", h.stateFile, "start"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "Voting session")
}
