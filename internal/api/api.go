package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/store"
	"github.com/joescharf/pilot/internal/ticket"
	"github.com/joescharf/pilot/internal/workflow"
	"github.com/joescharf/pilot/internal/workspace"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	workflow *workflow.Service
	tickets  *ticket.Lookup
	inspect  *workspace.Inspector
	log      *slog.Logger
}

// NewServer creates a new API server.
func NewServer(s store.Store, wf *workflow.Service, tl *ticket.Lookup, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:    s,
		workflow: wf,
		tickets:  tl,
		inspect:  workspace.NewInspector(),
		log:      log,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.getStatus)
	mux.HandleFunc("GET /api/v1/status/events", s.streamStatus)

	mux.HandleFunc("POST /api/v1/workflow/directory", s.selectDirectory)
	mux.HandleFunc("POST /api/v1/workflow/evaluate", s.evaluate)
	mux.HandleFunc("GET /api/v1/workspace", s.getWorkspace)

	mux.HandleFunc("GET /api/v1/integrations/jira", s.getJira)
	mux.HandleFunc("PUT /api/v1/integrations/jira", s.saveJira)
	mux.HandleFunc("DELETE /api/v1/integrations/jira", s.resetJira)

	mux.HandleFunc("GET /api/v1/tickets", s.listTickets)
	mux.HandleFunc("GET /api/v1/tickets/{key}", s.lookupTicket)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)

	mux.HandleFunc("POST /api/v1/agent/prompt", s.prompt)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// --- Status ---

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.workflow.Snapshot())
}

// streamStatus pushes every agent status write as a server-sent event.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates := make(chan models.StatusSnapshot, 1)
	unsubscribe := s.workflow.Initializer().Status().Subscribe(func(snap models.StatusSnapshot) {
		offerLatest(updates, snap)
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(snap models.StatusSnapshot) bool {
		data, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.workflow.Snapshot().Agent) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if !send(snap) {
				s.log.Debug("status stream client went away")
				return
			}
		}
	}
}

// offerLatest puts snap into the single-slot ch, replacing a value the
// reader has not taken yet. A slow client skips intermediate writes but
// always receives the newest one.
func offerLatest(ch chan models.StatusSnapshot, snap models.StatusSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// --- Workflow ---

type directoryRequest struct {
	Path string `json:"path"`
}

func (s *Server) selectDirectory(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	dir, err := s.workflow.SelectDirectory(r.Context(), strings.TrimSpace(req.Path))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := map[string]any{"directory": dir, "status": s.workflow.Snapshot()}
	if dir != "" {
		resp["workspace"] = s.inspect.Inspect(dir)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	s.workflow.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.workflow.Snapshot())
}

func (s *Server) getWorkspace(w http.ResponseWriter, _ *http.Request) {
	dir, ok := s.workflow.Initializer().Directory().Get()
	if !ok {
		writeError(w, http.StatusNotFound, "no working directory selected")
		return
	}
	writeJSON(w, http.StatusOK, s.inspect.Inspect(dir))
}

// --- Integrations ---

type jiraResponse struct {
	models.JiraCredentials
	Configured bool `json:"configured"`
}

func (s *Server) getJira(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.GetJiraCredentials(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jiraResponse{JiraCredentials: creds.Masked(), Configured: creds.Configured()})
}

func (s *Server) saveJira(w http.ResponseWriter, r *http.Request) {
	var creds models.JiraCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	creds.BaseURL = strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")
	creds.Email = strings.TrimSpace(creds.Email)
	creds.APIToken = strings.TrimSpace(creds.APIToken)

	if err := s.store.SaveJiraCredentials(r.Context(), creds); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.workflow.Refresh(r.Context())
	writeJSON(w, http.StatusOK, jiraResponse{JiraCredentials: creds.Masked(), Configured: creds.Configured()})
}

func (s *Server) resetJira(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetJiraCredentials(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.workflow.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// --- Tickets ---

func (s *Server) lookupTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.tickets.Find(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func lookupStatus(err error) int {
	switch {
	case errors.Is(err, ticket.ErrEmptyKey), errors.Is(err, ticket.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ticket.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.store.ListRecentTickets(r.Context(), queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tickets == nil {
		tickets = []*models.CachedTicket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListWorkflowSessions(r.Context(), queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.WorkflowSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// --- Agent ---

type promptRequest struct {
	Text string `json:"text"`
}

func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.workflow.Prompt(r.Context(), req.Text)
	if errors.Is(err, workflow.ErrNotReady) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
