// Package ticket turns raw issue-tracker payloads into display-ready tickets.
package ticket

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/joescharf/pilot/internal/models"
)

// ErrNotFound is returned when a payload does not describe a ticket.
var ErrNotFound = errors.New("ticket not found")

// Placeholders used when a field is missing from the payload.
const (
	DefaultTitle      = "Untitled ticket"
	DefaultAssignee   = "Unassigned"
	DefaultStatus     = "Unknown"
	DefaultCreated    = "Unknown"
	NoDescription     = "No description provided."
	UnsupportedFormat = "Description uses an unsupported format."
	defaultIssueType  = models.IssueTypeTask
	defaultPriority   = models.PriorityMedium
)

// Normalize maps a decoded issue payload onto a Ticket. raw may be a
// map[string]any, json.RawMessage or []byte. requestedKey is used when the
// payload carries no id or key of its own.
func Normalize(raw any, requestedKey string) (models.Ticket, error) {
	rec, ok := asRecord(raw)
	if !ok {
		return models.Ticket{}, ErrNotFound
	}
	requestedKey = strings.TrimSpace(requestedKey)

	id := scalarString(rec["id"])
	key := scalarString(rec["key"])
	if id == "" {
		id = requestedKey
	}
	if key == "" {
		key = requestedKey
	}
	if id == "" && key == "" {
		return models.Ticket{}, ErrNotFound
	}
	if id == "" {
		id = key
	}
	if key == "" {
		key = id
	}

	fields, _ := rec["fields"].(map[string]any)

	return models.Ticket{
		ID:          id,
		Key:         key,
		Title:       stringOr(fields["summary"], DefaultTitle),
		Type:        normalizeType(nestedString(fields, "issuetype", "name")),
		Priority:    normalizePriority(nestedString(fields, "priority", "name")),
		Assignee:    orDefault(nestedString(fields, "assignee", "displayName"), DefaultAssignee),
		Status:      orDefault(nestedString(fields, "status", "name"), DefaultStatus),
		Created:     stringOr(fields["created"], DefaultCreated),
		Description: description(fields["description"]),
	}, nil
}

func asRecord(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		return decodeRecord(v)
	case []byte:
		return decodeRecord(v)
	default:
		return nil, false
	}
}

func decodeRecord(data []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func nestedString(fields map[string]any, obj, field string) string {
	m, ok := fields[obj].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

func stringOr(v any, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	return orDefault(s, def)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func description(v any) string {
	switch x := v.(type) {
	case nil:
		return NoDescription
	case string:
		if x == "" {
			return NoDescription
		}
		return x
	default:
		return UnsupportedFormat
	}
}

func normalizeType(name string) models.IssueType {
	switch t := models.IssueType(name); t {
	case models.IssueTypeStory, models.IssueTypeBug, models.IssueTypeTask, models.IssueTypeEpic:
		return t
	}
	return defaultIssueType
}

func normalizePriority(name string) models.Priority {
	switch p := models.Priority(name); p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
		return p
	}
	return defaultPriority
}
