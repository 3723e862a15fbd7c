package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Default agent commands.
const (
	CLIAuthCommand        = "npx"
	CLIAuthPackage        = "acp-claude-code"
	DirectCommand         = "claude-code-acp"
	DefaultPermissionMode = "acceptEdits"
)

// LaunchConfig selects the agent executable. Command overrides the default
// choice derived from UseCLIAuth.
type LaunchConfig struct {
	UseCLIAuth     bool
	Command        string
	Args           []string
	PermissionMode string
	Env            []string
}

// Resolve returns the command, arguments and extra environment to run.
func (c LaunchConfig) Resolve() (name string, args, env []string) {
	env = append(env, c.Env...)
	switch {
	case c.Command != "":
		name, args = c.Command, c.Args
	case c.UseCLIAuth:
		name = CLIAuthCommand
		if runtime.GOOS == "windows" {
			name = "npx.cmd"
		}
		args = append([]string{CLIAuthPackage}, c.Args...)
	default:
		name, args = DirectCommand, c.Args
	}
	if c.UseCLIAuth {
		mode := c.PermissionMode
		if mode == "" {
			mode = DefaultPermissionMode
		}
		env = append(env, "ACP_PERMISSION_MODE="+mode)
	}
	return name, args, env
}

// Process is a running agent subprocess.
type Process struct {
	cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	stderr *tailBuffer

	closeOnce sync.Once
	closeErr  error
	exited    chan struct{}
	waitErr   error
}

// Start launches the agent with dir as its working directory. The process is
// not tied to any context; Close ends it.
func (c LaunchConfig) Start(dir string) (*Process, error) {
	name, args, env := c.Resolve()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// A plain pipe keeps stdout readable until EOF even after Wait returns.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	stderr := &tailBuffer{max: 8 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	stdoutW.Close()

	p := &Process{cmd: cmd, Stdin: stdin, Stdout: stdout, stderr: stderr, exited: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// PID returns the OS process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Stderr returns the tail of the agent's stderr.
func (p *Process) Stderr() string { return p.stderr.String() }

// Exited is closed once the process has exited.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Close closes stdin, gives the agent a moment to exit, then kills it.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.Stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		_ = p.Stdout.Close()
		var exitErr *exec.ExitError
		if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
			p.closeErr = p.waitErr
		}
	})
	return p.closeErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
