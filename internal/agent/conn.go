package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// ErrClosed is returned for calls on a connection whose peer has gone away.
var ErrClosed = errors.New("agent connection closed")

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Handler serves messages initiated by the agent.
type Handler interface {
	// HandleRequest answers a request. Returning an *RPCError sends it as-is;
	// any other error is sent as an internal error.
	HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error)
	// HandleNotification runs on the read loop, in arrival order.
	HandleNotification(method string, params json.RawMessage)
}

type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

type outRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type outResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type outError struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *RPCError       `json:"error"`
}

// Conn is a newline-delimited JSON-RPC 2.0 connection. Both sides may issue
// requests; responses are matched to callers by id.
type Conn struct {
	w       io.Writer
	wmu     sync.Mutex
	handler Handler
	log     *slog.Logger

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *message
	err     error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConn starts reading r and returns a connection writing to w.
func NewConn(r io.Reader, w io.Writer, h Handler, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		w:       w,
		handler: h,
		log:     log,
		pending: make(map[int64]chan *message),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Done is closed when the read side has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call sends a request and decodes the result into result (which may be nil).
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(outRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg == nil {
			return fmt.Errorf("%s: %w", method, c.Err())
		}
		if msg.Error != nil {
			return fmt.Errorf("%s: %w", method, msg.Error)
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	return c.write(outRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(r io.Reader) {
	br := bufio.NewReaderSize(r, 64<<10)
	var readErr error
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			readErr = err
			break
		}
	}
	c.shutdown(readErr)
}

func (c *Conn) dispatch(line []byte) {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		c.log.Debug("agent sent invalid json", "error", err)
		return
	}

	switch {
	case msg.Method != "" && msg.ID != nil:
		go c.serve(*msg.ID, msg.Method, msg.Params)
	case msg.Method != "":
		if c.handler != nil {
			c.handler.HandleNotification(msg.Method, msg.Params)
		}
	case msg.ID != nil:
		id, err := strconv.ParseInt(string(*msg.ID), 10, 64)
		if err != nil {
			c.log.Debug("agent response with unknown id", "id", string(*msg.ID))
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

func (c *Conn) serve(id json.RawMessage, method string, params json.RawMessage) {
	if c.handler == nil {
		c.reply(id, nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method})
		return
	}
	result, err := c.handler.HandleRequest(c.ctx, method, params)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		c.reply(id, nil, rpcErr)
		return
	}
	c.reply(id, result, nil)
}

func (c *Conn) reply(id json.RawMessage, result any, rpcErr *RPCError) {
	var err error
	if rpcErr != nil {
		err = c.write(outError{JSONRPC: "2.0", ID: id, Error: rpcErr})
	} else {
		if result == nil {
			result = struct{}{}
		}
		err = c.write(outResult{JSONRPC: "2.0", ID: id, Result: result})
	}
	if err != nil {
		c.log.Debug("reply to agent failed", "error", err)
	}
}

func (c *Conn) shutdown(cause error) {
	if cause == nil || errors.Is(cause, io.EOF) {
		cause = ErrClosed
	} else {
		cause = fmt.Errorf("%w: %w", ErrClosed, cause)
	}

	c.mu.Lock()
	c.err = cause
	pending := c.pending
	c.pending = make(map[int64]chan *message)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- nil
	}
	c.cancel()
	close(c.done)
}
