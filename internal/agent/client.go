package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joescharf/pilot/internal/models"
)

// ErrNoSession is returned when prompting before a session was established.
var ErrNoSession = errors.New("agent session not established")

// Client speaks the agent client protocol to one agent process. It serves the
// agent's file requests from root and collects reply text during a prompt.
type Client struct {
	conn *Conn
	root string
	log  *slog.Logger

	mu        sync.Mutex
	sessionID string
	collect   *strings.Builder

	promptMu sync.Mutex
}

// NewClient wires a Client to the agent's stdout (r) and stdin (w).
func NewClient(r io.Reader, w io.Writer, root string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{root: filepath.Clean(root), log: log}
	c.conn = NewConn(r, w, c, log)
	return c
}

// Root returns the project root the client serves files from.
func (c *Client) Root() string { return c.root }

// SessionID returns the established session id, or "".
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Done is closed when the agent's output ends.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Initialize negotiates the protocol and advertises file access without a terminal.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientCapabilities: ClientCapabilities{
			FS: FileSystemCapability{ReadTextFile: true, WriteTextFile: true},
		},
	}
	var res InitializeResult
	if err := c.conn.Call(ctx, MethodInitialize, params, &res); err != nil {
		return InitializeResult{}, err
	}
	return res, nil
}

// NewSession opens a session rooted at cwd.
func (c *Client) NewSession(ctx context.Context, cwd string) (string, error) {
	var res NewSessionResult
	if err := c.conn.Call(ctx, MethodSessionNew, NewSessionParams{Cwd: cwd, MCPServers: []any{}}, &res); err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("%s: agent returned no session id", MethodSessionNew)
	}
	c.mu.Lock()
	c.sessionID = res.SessionID
	c.mu.Unlock()
	return res.SessionID, nil
}

// Handshake runs Initialize then NewSession for the client's root.
func (c *Client) Handshake(ctx context.Context) error {
	if _, err := c.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}
	if _, err := c.NewSession(ctx, c.root); err != nil {
		return fmt.Errorf("create agent session: %w", err)
	}
	return nil
}

// Prompt sends text and returns once the agent ends its turn. Only one prompt
// runs at a time. If ctx ends first, the agent is asked to cancel.
func (c *Client) Prompt(ctx context.Context, text string) (models.PromptResult, error) {
	c.promptMu.Lock()
	defer c.promptMu.Unlock()

	sessionID := c.SessionID()
	if sessionID == "" {
		return models.PromptResult{}, ErrNoSession
	}

	var buf strings.Builder
	c.mu.Lock()
	c.collect = &buf
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.collect = nil
		c.mu.Unlock()
	}()

	params := PromptParams{
		SessionID: sessionID,
		Prompt:    []ContentBlock{{Type: "text", Text: text}},
	}
	var res PromptResponse
	if err := c.conn.Call(ctx, MethodSessionPrompt, params, &res); err != nil {
		if ctx.Err() != nil {
			_ = c.conn.Notify(MethodSessionCancel, CancelParams{SessionID: sessionID})
		}
		return models.PromptResult{}, err
	}

	c.mu.Lock()
	out := buf.String()
	c.mu.Unlock()
	return models.PromptResult{StopReason: res.StopReason, Text: out, Meta: res.Meta}, nil
}

// HandleNotification accumulates reply text for the active session.
func (c *Client) HandleNotification(method string, params json.RawMessage) {
	if method != MethodSessionUpdate {
		return
	}
	var n SessionNotification
	if err := json.Unmarshal(params, &n); err != nil {
		c.log.Debug("bad session update", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n.SessionID != c.sessionID || c.collect == nil {
		return
	}
	if n.Update.SessionUpdate == UpdateAgentMessageChunk && n.Update.Content != nil && n.Update.Content.Type == "text" {
		c.collect.WriteString(n.Update.Content.Text)
	}
}

// HandleRequest serves file access under the root. Permission, terminal and
// any other requests are refused with method-not-found.
func (c *Client) HandleRequest(_ context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodReadTextFile:
		var p ReadTextFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return readTextFile(c.root, p)
	case MethodWriteTextFile:
		var p WriteTextFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		if err := writeTextFile(c.root, p); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	case MethodRequestPermission:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "Permission requests not supported"}
	}
	if strings.HasPrefix(method, "terminal/") {
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "Terminal functionality not supported"}
	}
	return nil, &RPCError{Code: CodeMethodNotFound, Message: "Method not supported: " + method}
}
