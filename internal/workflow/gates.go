package workflow

import (
	"context"
	"sync"

	"github.com/joescharf/pilot/internal/models"
)

// CredentialSource is the subset of the store needed to read issue-tracker credentials.
type CredentialSource interface {
	GetJiraCredentials(ctx context.Context) (models.JiraCredentials, error)
}

// CredentialGate answers whether the issue-tracker integration is usable.
type CredentialGate struct {
	source CredentialSource
}

// NewCredentialGate wraps a credential source. A nil source is never configured.
func NewCredentialGate(source CredentialSource) *CredentialGate {
	return &CredentialGate{source: source}
}

// Present reads the source now and reports whether all credentials are set.
// Read errors count as absent.
func (g *CredentialGate) Present(ctx context.Context) bool {
	if g == nil || g.source == nil {
		return false
	}
	creds, err := g.source.GetJiraCredentials(ctx)
	if err != nil {
		return false
	}
	return creds.Configured()
}

// DirectoryGate holds the selected project directory. Only the Initializer writes it.
type DirectoryGate struct {
	mu  sync.RWMutex
	dir string
}

// Get returns the selected directory and whether one is set.
func (g *DirectoryGate) Get() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dir, g.dir != ""
}

func (g *DirectoryGate) set(dir string) {
	g.mu.Lock()
	g.dir = dir
	g.mu.Unlock()
}
