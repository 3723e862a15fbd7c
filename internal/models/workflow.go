package models

import "time"

// InitState is the current step of workflow initialization.
type InitState string

const (
	InitStateCredentialCheck InitState = "credential-check"
	InitStateDirectorySelect InitState = "directory-select"
	InitStateStartingAgent   InitState = "starting-agent"
	InitStateConfiguring     InitState = "configuring"
	InitStateReady           InitState = "ready"
)

// AgentStatus is the coarse activity state of the agent shown by every status surface.
type AgentStatus string

const (
	AgentStatusIdle       AgentStatus = "idle"
	AgentStatusThinking   AgentStatus = "thinking"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusError      AgentStatus = "error"
	AgentStatusWaiting    AgentStatus = "waiting"
)

// StatusSnapshot is one value of the shared agent status slot.
type StatusSnapshot struct {
	Status    AgentStatus `json:"status"`
	Detail    string      `json:"detail"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// WorkflowSession records a single agent start attempt against a project root.
type WorkflowSession struct {
	ID          string     `json:"id"`
	ProjectRoot string     `json:"projectRoot"`
	Generation  uint64     `json:"generation"`
	State       InitState  `json:"state"`
	Outcome     string     `json:"outcome"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// Session outcomes.
const (
	OutcomePending   = "pending"
	OutcomeReady     = "ready"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)
