package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joescharf/pilot/internal/models"
)

var validCreds = models.JiraCredentials{
	BaseURL:  "https://example.atlassian.net",
	Email:    "dev@example.com",
	APIToken: "secret-token",
}

type fakeCreds struct {
	mu    sync.Mutex
	creds models.JiraCredentials
	err   error
}

func (f *fakeCreds) GetJiraCredentials(_ context.Context) (models.JiraCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds, f.err
}

func (f *fakeCreds) set(c models.JiraCredentials) {
	f.mu.Lock()
	f.creds = c
	f.mu.Unlock()
}

// fakeAgent records start/stop calls. With hold set, each StartAgent blocks
// until finish is called for its generation, ignoring ctx like a real
// subprocess spawn that cannot be interrupted.
type fakeAgent struct {
	mu      sync.Mutex
	hold    bool
	err     error
	pending map[uint64]chan error
	starts  []StartRequest
	stops   []StartRequest
	started chan StartRequest
}

func newFakeAgent(hold bool) *fakeAgent {
	return &fakeAgent{
		hold:    hold,
		pending: make(map[uint64]chan error),
		started: make(chan StartRequest, 32),
	}
}

func (a *fakeAgent) StartAgent(_ context.Context, req StartRequest) error {
	a.mu.Lock()
	a.starts = append(a.starts, req)
	var ch chan error
	if a.hold {
		ch = make(chan error, 1)
		a.pending[req.Generation] = ch
	}
	err := a.err
	a.mu.Unlock()

	a.started <- req
	if ch != nil {
		return <-ch
	}
	return err
}

func (a *fakeAgent) StopAgent(_ context.Context, req StartRequest) error {
	a.mu.Lock()
	a.stops = append(a.stops, req)
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) waitStart(t *testing.T) StartRequest {
	t.Helper()
	select {
	case req := <-a.started:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("agent start was not requested")
		return StartRequest{}
	}
}

func (a *fakeAgent) finish(t *testing.T, gen uint64, err error) {
	t.Helper()
	a.mu.Lock()
	ch, ok := a.pending[gen]
	delete(a.pending, gen)
	a.mu.Unlock()
	require.True(t, ok, "no pending start for generation %d", gen)
	ch <- err
}

func (a *fakeAgent) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.starts)
}

func (a *fakeAgent) stopped() []StartRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]StartRequest(nil), a.stops...)
}

var errSpawn = errors.New("spawn failed")

const (
	defaultWait = 2 * time.Second
	pollEvery   = 5 * time.Millisecond
)

func newTestInitializer(t *testing.T, creds *fakeCreds, agent *fakeAgent) *Initializer {
	t.Helper()
	in := NewInitializer(Config{
		Credentials: creds,
		Agent:       agent,
		Settle:      FixedSettle{},
	})
	t.Cleanup(in.Close)
	return in
}

func eventuallyState(t *testing.T, in *Initializer, want models.InitState) {
	t.Helper()
	require.Eventually(t, func() bool { return in.State() == want },
		2*time.Second, 5*time.Millisecond, "state never reached %s (now %s)", want, in.State())
}
