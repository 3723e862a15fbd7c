package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pilot/internal/models"
)

// fakeJira serves a single issue and a one-page search.
func fakeJira(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/3/issue/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") != "APC-142" {
			http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{
			"id": "10042",
			"key": "APC-142",
			"fields": {
				"summary": "Fix login redirect",
				"issuetype": {"name": "Bug"},
				"priority": {"name": "High"},
				"status": {"name": "In Progress"},
				"description": {"type": "doc", "content": []}
			}
		}`)
	})
	mux.HandleFunc("POST /rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "project = APC", body["jql"])
		_, _ = io.WriteString(w, `{"startAt":0,"maxResults":100,"total":2,"issues":[
			{"id":"1","key":"APC-1","fields":{"summary":"First"}},
			{"id":"2","key":"APC-2","fields":{"summary":"Second","priority":{"name":"Critical"}}}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func configureJira(t *testing.T, baseURL string) {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	require.NoError(t, s.SaveJiraCredentials(context.Background(), models.JiraCredentials{
		BaseURL: baseURL, Email: "dev@acme.io", APIToken: "tok",
	}))
}

func TestTicketLookup_NotConfigured(t *testing.T) {
	testEnv(t)
	err := ticketLookupRun(context.Background(), "APC-1")
	require.Error(t, err)
	assert.Equal(t, "Configure Jira credentials in Integrations before searching.", err.Error())
}

func TestTicketLookup_FoundThenRecent(t *testing.T) {
	testEnv(t)
	srv := fakeJira(t)
	configureJira(t, srv.URL)

	require.NoError(t, ticketLookupRun(context.Background(), "APC-142"))
	out := outputOf(t)
	assert.Contains(t, out, "APC-142")
	assert.Contains(t, out, "Fix login redirect")
	assert.Contains(t, out, "In Progress")
	assert.Contains(t, out, "Unassigned")
	assert.Contains(t, out, "Description uses an unsupported format.")

	recentLimit = 20
	require.NoError(t, ticketRecentRun(context.Background()))
	assert.Equal(t, 2, strings.Count(outputOf(t), "APC-142"))
}

func TestTicketLookup_FetchFailure(t *testing.T) {
	testEnv(t)
	srv := fakeJira(t)
	configureJira(t, srv.URL)

	err := ticketLookupRun(context.Background(), "APC-404")
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch ticket APC-404", err.Error())
}

func TestTicketLookup_JSON(t *testing.T) {
	testEnv(t)
	srv := fakeJira(t)
	configureJira(t, srv.URL)

	ticketJSON = true
	t.Cleanup(func() { ticketJSON = false })
	require.NoError(t, ticketLookupRun(context.Background(), "APC-142"))

	var tk models.Ticket
	require.NoError(t, json.Unmarshal([]byte(outputOf(t)), &tk))
	assert.Equal(t, models.IssueTypeBug, tk.Type)
	assert.Equal(t, models.PriorityHigh, tk.Priority)
}

func TestTicketRecent_Empty(t *testing.T) {
	testEnv(t)
	require.NoError(t, ticketRecentRun(context.Background()))
	assert.Contains(t, outputOf(t), "No tickets looked up yet")
}

func TestTicketSearch(t *testing.T) {
	testEnv(t)
	srv := fakeJira(t)
	configureJira(t, srv.URL)

	require.NoError(t, ticketSearchRun(context.Background(), "project = APC"))
	out := outputOf(t)
	assert.Contains(t, out, "APC-1")
	assert.Contains(t, out, "Second")
	assert.Contains(t, out, "Critical")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
