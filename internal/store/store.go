package store

import (
	"context"
	"errors"

	"github.com/joescharf/pilot/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// IntegrationsKey is the settings key holding the integrations document.
const IntegrationsKey = "integrations-store"

// Store defines the persistence interface for pilot.
type Store interface {
	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Integrations
	GetJiraCredentials(ctx context.Context) (models.JiraCredentials, error)
	SaveJiraCredentials(ctx context.Context, creds models.JiraCredentials) error
	ResetJiraCredentials(ctx context.Context) error

	// Workflow sessions
	CreateWorkflowSession(ctx context.Context, session *models.WorkflowSession) error
	UpdateWorkflowSession(ctx context.Context, session *models.WorkflowSession) error
	ListWorkflowSessions(ctx context.Context, limit int) ([]*models.WorkflowSession, error)

	// Tickets
	SaveTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, key string) (*models.CachedTicket, error)
	ListRecentTickets(ctx context.Context, limit int) ([]*models.CachedTicket, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
