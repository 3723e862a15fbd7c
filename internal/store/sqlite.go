package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/pilot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers from the API, the MCP server and the
	// initializer's session recorder.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// --- Integrations ---

// integrations reads the integrations document as raw sections so saving one
// integration leaves the others untouched.
func (s *SQLiteStore) integrations(ctx context.Context) (map[string]json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	raw, err := s.GetSetting(ctx, IntegrationsKey)
	if errors.Is(err, ErrNotFound) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", IntegrationsKey, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (s *SQLiteStore) GetJiraCredentials(ctx context.Context) (models.JiraCredentials, error) {
	doc, err := s.integrations(ctx)
	if err != nil {
		return models.JiraCredentials{}, err
	}
	var creds models.JiraCredentials
	if section, ok := doc["jira"]; ok {
		if err := json.Unmarshal(section, &creds); err != nil {
			return models.JiraCredentials{}, fmt.Errorf("decode jira credentials: %w", err)
		}
	}
	return creds, nil
}

func (s *SQLiteStore) SaveJiraCredentials(ctx context.Context, creds models.JiraCredentials) error {
	doc, err := s.integrations(ctx)
	if err != nil {
		return err
	}
	section, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode jira credentials: %w", err)
	}
	doc["jira"] = section
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", IntegrationsKey, err)
	}
	return s.SetSetting(ctx, IntegrationsKey, string(data))
}

func (s *SQLiteStore) ResetJiraCredentials(ctx context.Context) error {
	return s.SaveJiraCredentials(ctx, models.JiraCredentials{})
}

// --- Workflow sessions ---

func (s *SQLiteStore) CreateWorkflowSession(ctx context.Context, ws *models.WorkflowSession) error {
	if ws.ID == "" {
		ws.ID = newULID()
	}
	if ws.StartedAt.IsZero() {
		ws.StartedAt = time.Now().UTC()
	}
	if ws.Outcome == "" {
		ws.Outcome = models.OutcomePending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_sessions (id, project_root, generation, state, outcome, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.ProjectRoot, int64(ws.Generation), string(ws.State), ws.Outcome, ws.Error, ws.StartedAt, ws.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create workflow session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateWorkflowSession(ctx context.Context, ws *models.WorkflowSession) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflow_sessions SET state=?, outcome=?, error=?, ended_at=? WHERE id=?`,
		string(ws.State), ws.Outcome, ws.Error, ws.EndedAt, ws.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("workflow session %s: %w", ws.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListWorkflowSessions(ctx context.Context, limit int) ([]*models.WorkflowSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_root, generation, state, outcome, error, started_at, ended_at
		FROM workflow_sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflow sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.WorkflowSession
	for rows.Next() {
		ws := &models.WorkflowSession{}
		var gen int64
		var state string
		var ended sql.NullTime
		if err := rows.Scan(&ws.ID, &ws.ProjectRoot, &gen, &state, &ws.Outcome, &ws.Error, &ws.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scan workflow session: %w", err)
		}
		ws.Generation = uint64(gen)
		ws.State = models.InitState(state)
		if ended.Valid {
			t := ended.Time
			ws.EndedAt = &t
		}
		sessions = append(sessions, ws)
	}
	return sessions, rows.Err()
}

// --- Tickets ---

const ticketColumns = `key, id, title, type, priority, assignee, status, created, description, fetched_at`

func (s *SQLiteStore) SaveTicket(ctx context.Context, t *models.Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			id=excluded.id, title=excluded.title, type=excluded.type, priority=excluded.priority,
			assignee=excluded.assignee, status=excluded.status, created=excluded.created,
			description=excluded.description, fetched_at=excluded.fetched_at`,
		t.Key, t.ID, t.Title, string(t.Type), string(t.Priority), t.Assignee, t.Status, t.Created, t.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*models.CachedTicket, error) {
	ct := &models.CachedTicket{}
	var typ, prio string
	err := row.Scan(&ct.Key, &ct.ID, &ct.Title, &typ, &prio, &ct.Assignee, &ct.Status, &ct.Created, &ct.Description, &ct.FetchedAt)
	if err != nil {
		return nil, err
	}
	ct.Type = models.IssueType(typ)
	ct.Priority = models.Priority(prio)
	return ct, nil
}

func (s *SQLiteStore) GetTicket(ctx context.Context, key string) (*models.CachedTicket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE key = ?`, key)
	ct, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ct, nil
}

func (s *SQLiteStore) ListRecentTickets(ctx context.Context, limit int) ([]*models.CachedTicket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets ORDER BY fetched_at DESC, key LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []*models.CachedTicket
	for rows.Next() {
		ct, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ct)
	}
	return tickets, rows.Err()
}
