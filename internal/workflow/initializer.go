package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/pilot/internal/models"
)

// User-facing details written to the status channel during initialization.
const (
	DetailStarting    = "Starting agent subprocess..."
	DetailConfiguring = "Configuring workspace environment..."
	DetailReady       = "Ready to begin workflow"
	DetailStartFailed = "Failed to initialize workspace. Please check your working directory."
)

// DefaultSettleInterval is how long the configuring step waits when the agent
// host cannot acknowledge readiness itself.
const DefaultSettleInterval = 1500 * time.Millisecond

// StartRequest is the agent-start call. Generation identifies the attempt so the
// host can tell a superseded start from the live one.
type StartRequest struct {
	UseCLIAuth  bool   `json:"useCliAuth"`
	ProjectRoot string `json:"projectRoot"`
	Generation  uint64 `json:"-"`
}

// AgentStarter starts and releases the long-lived agent subprocess.
type AgentStarter interface {
	StartAgent(ctx context.Context, req StartRequest) error
	StopAgent(ctx context.Context, req StartRequest) error
}

// Settler blocks until a freshly started agent can be treated as usable.
type Settler interface {
	Settle(ctx context.Context, projectRoot string) error
}

// FixedSettle waits a constant interval.
type FixedSettle struct {
	Interval time.Duration
}

// Settle waits Interval or until ctx is done.
func (s FixedSettle) Settle(ctx context.Context, _ string) error {
	if s.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Interval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transition describes one state change. Reset is set when a directory change
// discarded the previous session; Err is set when an attempt failed.
type Transition struct {
	From       models.InitState
	To         models.InitState
	Generation uint64
	Directory  string
	Reset      bool
	Err        error
}

// Config wires an Initializer.
type Config struct {
	Credentials CredentialSource
	Agent       AgentStarter
	// Settle defaults to Agent when it implements Settler, else FixedSettle{DefaultSettleInterval}.
	Settle     Settler
	UseCLIAuth bool
	Status     *StatusChannel
	Directory  *DirectoryGate
	Logger     *slog.Logger
	// OnTransition runs with the state lock held and must not call back into the Initializer.
	OnTransition func(Transition)
}

// Snapshot is a consistent view of the workflow for status surfaces.
type Snapshot struct {
	State      models.InitState      `json:"state"`
	Ready      bool                  `json:"ready"`
	Directory  string                `json:"directory,omitempty"`
	Generation uint64                `json:"generation"`
	Agent      models.StatusSnapshot `json:"agent"`
}

// Initializer is the workflow initialization state machine. Every start attempt
// carries the generation current when it began; results from older generations
// are discarded.
type Initializer struct {
	creds        *CredentialGate
	agent        AgentStarter
	settle       Settler
	useCLIAuth   bool
	status       *StatusChannel
	dir          *DirectoryGate
	log          *slog.Logger
	onTransition func(Transition)

	mu       sync.Mutex
	state    models.InitState
	ready    bool
	gen      uint64
	tried    uint64 // generation of the last start attempt
	closed   bool
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewInitializer returns an Initializer in credential-check.
func NewInitializer(cfg Config) *Initializer {
	in := &Initializer{
		creds:        NewCredentialGate(cfg.Credentials),
		agent:        cfg.Agent,
		settle:       cfg.Settle,
		useCLIAuth:   cfg.UseCLIAuth,
		status:       cfg.Status,
		dir:          cfg.Directory,
		log:          cfg.Logger,
		onTransition: cfg.OnTransition,
		state:        models.InitStateCredentialCheck,
	}
	if in.settle == nil {
		if s, ok := cfg.Agent.(Settler); ok {
			in.settle = s
		} else {
			in.settle = FixedSettle{Interval: DefaultSettleInterval}
		}
	}
	if in.status == nil {
		in.status = NewStatusChannel()
	}
	if in.dir == nil {
		in.dir = &DirectoryGate{}
	}
	if in.log == nil {
		in.log = slog.Default()
	}
	return in
}

// Status returns the shared status channel.
func (in *Initializer) Status() *StatusChannel { return in.status }

// Directory returns the directory gate.
func (in *Initializer) Directory() *DirectoryGate { return in.dir }

// State returns the current initialization state.
func (in *Initializer) State() models.InitState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Ready reports whether the workflow reached ready for the current directory.
func (in *Initializer) Ready() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ready
}

// ReadyGeneration returns the current generation and whether it reached ready,
// read together so a caller cannot pair one session's readiness with another's generation.
func (in *Initializer) ReadyGeneration() (uint64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.gen, in.ready
}

// Generation returns the current session generation.
func (in *Initializer) Generation() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.gen
}

// Snapshot returns state, readiness, directory and agent status together.
func (in *Initializer) Snapshot() Snapshot {
	in.mu.Lock()
	snap := Snapshot{State: in.state, Ready: in.ready, Generation: in.gen}
	in.mu.Unlock()
	snap.Directory, _ = in.dir.Get()
	snap.Agent = in.status.Get()
	return snap
}

// Wait blocks until every in-flight start attempt has resolved.
func (in *Initializer) Wait() {
	in.inflight.Wait()
}

// Close cancels any in-flight attempt and waits for it to resolve.
func (in *Initializer) Close() {
	in.mu.Lock()
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
	}
	in.gen++
	in.closed = true
	in.mu.Unlock()
	in.inflight.Wait()
}

// Evaluate re-checks the gates and advances at most one step. It is a no-op
// unless the state is credential-check or directory-select with its
// precondition newly met, so rapid repeated triggers start at most one attempt.
// A directory whose attempt already failed is not retried until it is selected again.
func (in *Initializer) Evaluate(ctx context.Context) {
	present := in.creds.Present(ctx)

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}

	switch in.state {
	case models.InitStateCredentialCheck:
		if present {
			in.transitionLocked(models.InitStateDirectorySelect, false, nil)
		}
	case models.InitStateDirectorySelect:
		if !present {
			in.transitionLocked(models.InitStateCredentialCheck, false, nil)
			return
		}
		dir, ok := in.dir.Get()
		if !ok || in.tried == in.gen {
			return
		}
		in.startLocked(ctx, dir)
	}
}

// OnDirectoryChanged stores dir (empty clears it) and discards the current
// session: readiness drops, any in-flight attempt becomes stale and the state
// returns to directory-select, or credential-check when credentials are absent.
// An agent that already reached ready is released.
func (in *Initializer) OnDirectoryChanged(ctx context.Context, dir string) {
	present := in.creds.Present(ctx)

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state == models.InitStateReady && !in.closed {
		root, _ := in.dir.Get()
		req := StartRequest{UseCLIAuth: in.useCLIAuth, ProjectRoot: root, Generation: in.gen}
		in.inflight.Add(1)
		go func() {
			defer in.inflight.Done()
			in.release(req)
		}()
	}

	in.gen++
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
	}
	in.dir.set(dir)
	discarded := in.state == models.InitStateStartingAgent ||
		in.state == models.InitStateConfiguring ||
		in.state == models.InitStateReady
	in.ready = false

	target := models.InitStateDirectorySelect
	if !present {
		target = models.InitStateCredentialCheck
	}
	in.transitionLocked(target, true, nil)

	if discarded {
		in.setStatusLocked(models.AgentStatusIdle, DetailWaiting)
	}
}

// SetStatusFor writes the status channel only if generation is still current.
// It is used by the prompt flow so a reply that lands after a directory change
// does not clobber the newer session.
func (in *Initializer) SetStatusFor(generation uint64, status models.AgentStatus, detail string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if generation != in.gen {
		return false
	}
	in.setStatusLocked(status, detail)
	return true
}

func (in *Initializer) startLocked(ctx context.Context, dir string) {
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	in.cancel = cancel
	gen := in.gen
	in.tried = gen

	in.transitionLocked(models.InitStateStartingAgent, false, nil)
	in.setStatusLocked(models.AgentStatusProcessing, DetailStarting)

	in.inflight.Add(1)
	go in.run(attemptCtx, cancel, gen, dir)
}

func (in *Initializer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, dir string) {
	defer in.inflight.Done()
	defer cancel()

	req := StartRequest{UseCLIAuth: in.useCLIAuth, ProjectRoot: dir, Generation: gen}

	if err := in.agent.StartAgent(ctx, req); err != nil {
		in.fail(gen, fmt.Errorf("start agent: %w", err))
		return
	}

	if !in.advance(gen, models.InitStateConfiguring, models.AgentStatusProcessing, DetailConfiguring, false) {
		in.release(req)
		return
	}

	if err := in.settle.Settle(ctx, dir); err != nil {
		in.fail(gen, fmt.Errorf("configure workspace: %w", err))
		in.release(req)
		return
	}

	if !in.advance(gen, models.InitStateReady, models.AgentStatusIdle, DetailReady, true) {
		in.release(req)
	}
}

// advance moves to the next state if gen is still current.
func (in *Initializer) advance(gen uint64, to models.InitState, status models.AgentStatus, detail string, ready bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if gen != in.gen {
		in.log.Debug("discarding stale start result", "generation", gen, "current", in.gen)
		return false
	}
	in.transitionLocked(to, false, nil)
	in.setStatusLocked(status, detail)
	if ready {
		in.ready = true
		in.cancel = nil
	}
	return true
}

// fail records a failed attempt if gen is still current and reports whether it did.
func (in *Initializer) fail(gen uint64, err error) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if gen != in.gen {
		in.log.Debug("discarding stale start failure", "generation", gen, "error", err)
		return false
	}
	in.log.Warn("workflow initialization failed", "generation", gen, "error", err)
	in.ready = false
	in.cancel = nil
	in.setStatusLocked(models.AgentStatusError, DetailStartFailed)
	in.transitionLocked(models.InitStateDirectorySelect, false, err)
	return true
}

// release stops an agent whose start no longer belongs to the live session.
func (in *Initializer) release(req StartRequest) {
	if err := in.agent.StopAgent(context.Background(), req); err != nil {
		in.log.Warn("release superseded agent", "generation", req.Generation, "error", err)
	}
}

func (in *Initializer) transitionLocked(to models.InitState, reset bool, err error) {
	from := in.state
	in.state = to
	dir, _ := in.dir.Get()
	in.log.Info("workflow transition", "from", from, "to", to, "generation", in.gen, "directory", dir)
	if in.onTransition != nil {
		in.onTransition(Transition{
			From:       from,
			To:         to,
			Generation: in.gen,
			Directory:  dir,
			Reset:      reset,
			Err:        err,
		})
	}
}

// setStatusLocked stores the status under the state lock so the ordering of
// writes matches the ordering of state changes; listeners run afterwards.
func (in *Initializer) setStatusLocked(status models.AgentStatus, detail string) {
	seq := in.status.store(status, detail)
	go in.status.notify(seq)
}
