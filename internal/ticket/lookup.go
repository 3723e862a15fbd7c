package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/pilot/internal/models"
)

// Lookup failures carry a sentinel plus a message suitable for display.
var (
	ErrEmptyKey      = errors.New("ticket key is empty")
	ErrNotConfigured = errors.New("jira credentials are not configured")
	ErrFetch         = errors.New("fetch failed")
)

// LookupError is a failed lookup with a user-facing message.
type LookupError struct {
	Key     string
	Message string
	Err     error
}

func (e *LookupError) Error() string { return e.Message }

func (e *LookupError) Unwrap() error { return e.Err }

// Fetcher retrieves the raw issue payload for key using creds.
type Fetcher interface {
	FetchIssue(ctx context.Context, creds models.JiraCredentials, key string) (map[string]any, error)
}

// CredentialSource reads the stored issue-tracker credentials.
type CredentialSource interface {
	GetJiraCredentials(ctx context.Context) (models.JiraCredentials, error)
}

// Cache remembers tickets that were found. It is optional.
type Cache interface {
	SaveTicket(ctx context.Context, t *models.Ticket) error
}

// Lookup finds a single ticket by key.
type Lookup struct {
	Fetcher     Fetcher
	Credentials CredentialSource
	Cache       Cache
}

// Find fetches and normalizes the ticket for key. It never touches workflow state.
func (l *Lookup) Find(ctx context.Context, key string) (models.Ticket, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.Ticket{}, &LookupError{Message: "Enter a ticket key to search.", Err: ErrEmptyKey}
	}

	creds, err := l.credentials(ctx)
	if err != nil || !creds.Configured() {
		return models.Ticket{}, &LookupError{
			Key:     key,
			Message: "Configure Jira credentials in Integrations before searching.",
			Err:     ErrNotConfigured,
		}
	}

	raw, err := l.Fetcher.FetchIssue(ctx, creds, key)
	if err != nil {
		return models.Ticket{}, &LookupError{
			Key:     key,
			Message: fmt.Sprintf("Failed to fetch ticket %s", key),
			Err:     fmt.Errorf("%w: %w", ErrFetch, err),
		}
	}

	t, err := Normalize(raw, key)
	if err != nil {
		return models.Ticket{}, &LookupError{
			Key:     key,
			Message: fmt.Sprintf("Ticket %s not found", key),
			Err:     err,
		}
	}

	if l.Cache != nil {
		// Cache failures never fail the lookup.
		_ = l.Cache.SaveTicket(ctx, &t)
	}
	return t, nil
}

func (l *Lookup) credentials(ctx context.Context) (models.JiraCredentials, error) {
	if l.Credentials == nil {
		return models.JiraCredentials{}, ErrNotConfigured
	}
	return l.Credentials.GetJiraCredentials(ctx)
}
