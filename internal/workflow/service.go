package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/pilot/internal/models"
)

// ErrNotReady is returned when a prompt is sent before the workflow is ready.
var ErrNotReady = errors.New("workflow is not ready")

// SessionRecorder is the subset of the store needed to record start attempts.
type SessionRecorder interface {
	CreateWorkflowSession(ctx context.Context, session *models.WorkflowSession) error
	UpdateWorkflowSession(ctx context.Context, session *models.WorkflowSession) error
}

// Prompter sends one prompt to the live agent.
type Prompter interface {
	Prompt(ctx context.Context, text string) (models.PromptResult, error)
}

// ServiceConfig wires a Service. Sessions, Prompter and Resolve are optional.
type ServiceConfig struct {
	Config
	Sessions SessionRecorder
	Prompter Prompter
	// Resolve validates and normalizes a selected directory.
	Resolve func(path string) (string, error)
}

// Service coordinates the initializer with persistence and the prompt flow.
type Service struct {
	init     *Initializer
	sessions SessionRecorder
	prompter Prompter
	resolve  func(string) (string, error)
	log      *slog.Logger

	mu   sync.Mutex
	open map[uint64]*models.WorkflowSession

	promptMu sync.Mutex
}

// NewService builds the Service and its Initializer.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		sessions: cfg.Sessions,
		prompter: cfg.Prompter,
		resolve:  cfg.Resolve,
		log:      cfg.Logger,
		open:     make(map[uint64]*models.WorkflowSession),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	hook := cfg.OnTransition
	cfg.OnTransition = func(t Transition) {
		s.record(t)
		if hook != nil {
			hook(t)
		}
	}
	s.init = NewInitializer(cfg.Config)
	return s
}

// Initializer returns the underlying state machine.
func (s *Service) Initializer() *Initializer { return s.init }

// Snapshot returns the current workflow view.
func (s *Service) Snapshot() Snapshot { return s.init.Snapshot() }

// Refresh re-evaluates the gates, e.g. after credentials change. When the
// credential gate opens with a directory already selected, the start attempt
// follows in the same call.
func (s *Service) Refresh(ctx context.Context) {
	s.init.Evaluate(ctx)
	snap := s.init.Snapshot()
	if snap.State == models.InitStateDirectorySelect && snap.Directory != "" {
		s.init.Evaluate(ctx)
	}
}

// SelectDirectory records a new working directory and triggers evaluation.
// An empty path clears the selection.
func (s *Service) SelectDirectory(ctx context.Context, path string) (string, error) {
	dir := path
	if dir != "" && s.resolve != nil {
		resolved, err := s.resolve(path)
		if err != nil {
			return "", fmt.Errorf("select directory: %w", err)
		}
		dir = resolved
	}
	s.init.OnDirectoryChanged(ctx, dir)
	s.init.Evaluate(ctx)
	return dir, nil
}

// Prompt sends text to the agent. It requires the workflow to be ready and
// reports progress on the status channel for the session that issued it.
func (s *Service) Prompt(ctx context.Context, text string) (models.PromptResult, error) {
	if s.prompter == nil {
		return models.PromptResult{}, ErrNotReady
	}

	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	gen, ready := s.init.ReadyGeneration()
	if !ready {
		return models.PromptResult{}, ErrNotReady
	}
	s.init.SetStatusFor(gen, models.AgentStatusThinking, "Working on prompt...")

	result, err := s.prompter.Prompt(ctx, text)
	if err != nil {
		s.init.SetStatusFor(gen, models.AgentStatusError, "Prompt failed. The agent did not respond.")
		return models.PromptResult{}, fmt.Errorf("prompt agent: %w", err)
	}

	s.init.SetStatusFor(gen, models.AgentStatusCompleted, fmt.Sprintf("Reply received (%s)", result.StopReason))
	return result, nil
}

// Close stops the state machine and waits for in-flight attempts.
func (s *Service) Close() {
	s.init.Close()
}

// record keeps one workflow session row per start attempt. It runs under the
// initializer lock, so rows are written in transition order.
func (s *Service) record(t Transition) {
	if s.sessions == nil {
		return
	}
	ctx := context.Background()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Reset {
		for gen, ws := range s.open {
			ws.Outcome = models.OutcomeAbandoned
			ws.EndedAt = &now
			s.update(ctx, ws)
			delete(s.open, gen)
		}
		return
	}

	switch t.To {
	case models.InitStateStartingAgent:
		ws := &models.WorkflowSession{
			ProjectRoot: t.Directory,
			Generation:  t.Generation,
			State:       t.To,
			Outcome:     models.OutcomePending,
			StartedAt:   now,
		}
		if err := s.sessions.CreateWorkflowSession(ctx, ws); err != nil {
			s.log.Warn("record workflow session", "error", err)
			return
		}
		s.open[t.Generation] = ws
	case models.InitStateConfiguring:
		if ws, ok := s.open[t.Generation]; ok {
			ws.State = t.To
			s.update(ctx, ws)
		}
	case models.InitStateReady:
		if ws, ok := s.open[t.Generation]; ok {
			ws.State = t.To
			ws.Outcome = models.OutcomeReady
			ws.EndedAt = &now
			s.update(ctx, ws)
			delete(s.open, t.Generation)
		}
	case models.InitStateDirectorySelect:
		if t.Err == nil {
			return
		}
		if ws, ok := s.open[t.Generation]; ok {
			ws.State = t.To
			ws.Outcome = models.OutcomeFailed
			ws.Error = t.Err.Error()
			ws.EndedAt = &now
			s.update(ctx, ws)
			delete(s.open, t.Generation)
		}
	}
}

func (s *Service) update(ctx context.Context, ws *models.WorkflowSession) {
	if err := s.sessions.UpdateWorkflowSession(ctx, ws); err != nil {
		s.log.Warn("update workflow session", "id", ws.ID, "error", err)
	}
}
