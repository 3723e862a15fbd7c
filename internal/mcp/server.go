package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/ticket"
	"github.com/joescharf/pilot/internal/workflow"
	"github.com/joescharf/pilot/internal/workspace"
)

// RecentTickets lists tickets remembered from earlier lookups.
type RecentTickets interface {
	ListRecentTickets(ctx context.Context, limit int) ([]*models.CachedTicket, error)
}

// Server exposes the workflow and ticket lookup as MCP tools.
type Server struct {
	workflow *workflow.Service
	tickets  *ticket.Lookup
	recent   RecentTickets
	inspect  *workspace.Inspector
	version  string
}

// NewServer creates the MCP server wrapper.
func NewServer(wf *workflow.Service, tl *ticket.Lookup, recent RecentTickets, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		workflow: wf,
		tickets:  tl,
		recent:   recent,
		inspect:  workspace.NewInspector(),
		version:  version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("pilot", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.statusTool())
	srv.AddTool(s.selectDirectoryTool())
	srv.AddTool(s.lookupTicketTool())
	srv.AddTool(s.recentTicketsTool())
	srv.AddTool(s.promptTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// pilot_status
func (s *Server) statusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pilot_status",
		mcp.WithDescription("Get the workflow initialization state, readiness, selected directory and the current agent status."),
	)
	return tool, s.handleStatus
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.workflow.Snapshot())
}

// pilot_select_directory
func (s *Server) selectDirectoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pilot_select_directory",
		mcp.WithDescription("Select the project directory the agent works in. Starts agent initialization when Jira credentials are configured. Returns the resolved directory and workspace details."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute or ~-relative path to an existing directory")),
	)
	return tool, s.handleSelectDirectory
}

func (s *Server) handleSelectDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil || path == "" {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	dir, err := s.workflow.SelectDirectory(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type selectOut struct {
		Directory string            `json:"directory"`
		Workspace workspace.Info    `json:"workspace"`
		Status    workflow.Snapshot `json:"status"`
	}
	return jsonResult(selectOut{
		Directory: dir,
		Workspace: s.inspect.Inspect(dir),
		Status:    s.workflow.Snapshot(),
	})
}

// pilot_lookup_ticket
func (s *Server) lookupTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pilot_lookup_ticket",
		mcp.WithDescription("Look up a Jira ticket by key (e.g. APC-142). Returns id, key, title, type, priority, assignee, status, created and description."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Ticket key")),
	)
	return tool, s.handleLookupTicket
}

func (s *Server) handleLookupTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := request.GetString("key", "")
	t, err := s.tickets.Find(ctx, key)
	if err != nil {
		var le *ticket.LookupError
		if errors.As(err, &le) {
			return mcp.NewToolResultError(le.Message), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return jsonResult(t)
}

// pilot_recent_tickets
func (s *Server) recentTicketsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pilot_recent_tickets",
		mcp.WithDescription("List tickets found by recent lookups, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tickets (default 10)")),
	)
	return tool, s.handleRecentTickets
}

func (s *Server) handleRecentTickets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	tickets, err := s.recent.ListRecentTickets(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tickets: %v", err)), nil
	}
	if tickets == nil {
		tickets = []*models.CachedTicket{}
	}
	return jsonResult(tickets)
}

// pilot_prompt
func (s *Server) promptTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pilot_prompt",
		mcp.WithDescription("Send a prompt to the agent once the workflow is ready. Returns the agent's reply text and stop reason."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Prompt text")),
	)
	return tool, s.handlePrompt
}

func (s *Server) handlePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil || text == "" {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	res, err := s.workflow.Prompt(ctx, text)
	if errors.Is(err, workflow.ErrNotReady) {
		return mcp.NewToolResultError("workflow is not ready; select a directory and wait for initialization"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}
