package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/telemetry"
	"github.com/joescharf/pilot/internal/workflow"
)

var (
	// ErrNoAgent is returned when no agent is running.
	ErrNoAgent = errors.New("no agent is running")
	// ErrSuperseded is returned by a start that finished after a newer one began.
	ErrSuperseded = errors.New("agent start superseded by a newer selection")
)

// Session is a handshaken agent bound to one project root.
type Session struct {
	Client *Client
	Root   string
	closer io.Closer
}

// NewSession pairs a client with whatever releases its process.
func NewSession(client *Client, root string, closer io.Closer) *Session {
	return &Session{Client: client, Root: root, closer: closer}
}

// Close releases the underlying process.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SpawnFunc starts and handshakes an agent for req.
type SpawnFunc func(ctx context.Context, req workflow.StartRequest) (*Session, error)

// HostConfig wires a Host.
type HostConfig struct {
	Launch LaunchConfig
	// MinSettle is waited after the handshake is confirmed.
	MinSettle time.Duration
	// Spawn overrides process launch, mainly for tests.
	Spawn  SpawnFunc
	Logger *slog.Logger
}

// Host owns the single live agent. It implements workflow.AgentStarter and
// workflow.Settler.
type Host struct {
	launch    LaunchConfig
	minSettle time.Duration
	spawn     SpawnFunc
	log       *slog.Logger

	mu      sync.Mutex
	live    *Session
	liveGen uint64
	latest  uint64
}

// NewHost returns a Host with no running agent.
func NewHost(cfg HostConfig) *Host {
	h := &Host{
		launch:    cfg.Launch,
		minSettle: cfg.MinSettle,
		spawn:     cfg.Spawn,
		log:       cfg.Logger,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.spawn == nil {
		h.spawn = h.spawnProcess
	}
	return h
}

// StartAgent spawns and handshakes an agent for req, replacing the live one.
// A start that completes after a newer generation began is closed and
// reported as ErrSuperseded.
func (h *Host) StartAgent(ctx context.Context, req workflow.StartRequest) error {
	h.mu.Lock()
	if req.Generation > h.latest {
		h.latest = req.Generation
	}
	h.mu.Unlock()

	s, err := h.spawn(ctx, req)
	if err != nil {
		telemetry.CaptureError(err, map[string]string{"component": "agent", "op": "start"})
		return err
	}

	h.mu.Lock()
	if req.Generation < h.latest {
		h.mu.Unlock()
		h.closeSession(s)
		return ErrSuperseded
	}
	old := h.live
	h.live = s
	h.liveGen = req.Generation
	h.mu.Unlock()

	if old != nil {
		h.closeSession(old)
	}
	h.log.Info("agent started", "root", req.ProjectRoot, "generation", req.Generation)
	return nil
}

// StopAgent closes the live agent if it belongs to req's generation.
func (h *Host) StopAgent(_ context.Context, req workflow.StartRequest) error {
	h.mu.Lock()
	if h.live == nil || h.liveGen != req.Generation {
		h.mu.Unlock()
		return nil
	}
	s := h.live
	h.live = nil
	h.mu.Unlock()

	return s.Close()
}

// Settle confirms the live agent for projectRoot completed its handshake, then
// waits the minimum settle interval.
func (h *Host) Settle(ctx context.Context, projectRoot string) error {
	h.mu.Lock()
	s := h.live
	h.mu.Unlock()

	if s == nil || s.Root != projectRoot {
		return fmt.Errorf("settle %s: %w", projectRoot, ErrNoAgent)
	}
	if s.Client.SessionID() == "" {
		return fmt.Errorf("settle %s: %w", projectRoot, ErrNoSession)
	}
	select {
	case <-s.Client.Done():
		return fmt.Errorf("settle %s: agent exited", projectRoot)
	default:
	}
	return workflow.FixedSettle{Interval: h.minSettle}.Settle(ctx, projectRoot)
}

// Prompt forwards text to the live agent.
func (h *Host) Prompt(ctx context.Context, text string) (models.PromptResult, error) {
	h.mu.Lock()
	s := h.live
	h.mu.Unlock()
	if s == nil {
		return models.PromptResult{}, ErrNoAgent
	}
	return s.Client.Prompt(ctx, text)
}

// Live returns the root of the running agent, if any.
func (h *Host) Live() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.live == nil {
		return "", false
	}
	return h.live.Root, true
}

// Close stops the live agent and makes in-flight starts stale.
func (h *Host) Close() error {
	h.mu.Lock()
	s := h.live
	h.live = nil
	h.latest++
	h.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}

func (h *Host) closeSession(s *Session) {
	if err := s.Close(); err != nil {
		h.log.Warn("close agent", "root", s.Root, "error", err)
	}
}

func (h *Host) spawnProcess(ctx context.Context, req workflow.StartRequest) (*Session, error) {
	launch := h.launch
	launch.UseCLIAuth = req.UseCLIAuth

	proc, err := launch.Start(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	client := NewClient(proc.Stdout, proc.Stdin, req.ProjectRoot, h.log)
	if err := client.Handshake(ctx); err != nil {
		_ = proc.Close()
		if tail := proc.Stderr(); tail != "" {
			return nil, fmt.Errorf("%w (stderr: %s)", err, tail)
		}
		return nil, err
	}
	return NewSession(client, req.ProjectRoot, proc), nil
}
