// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Claim when a live process already holds the file.
var ErrRunning = errors.New("process already running")

// PIDFile is a file holding the PID of the serve daemon.
type PIDFile struct {
	Path string
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID replaces the file contents with pid. The parent directory is
// created and the write goes through a rename so readers never see a partial file.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}

func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content: %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Claim fails with ErrRunning while the recorded process is alive. A stale
// or unreadable file is removed.
func (p *PIDFile) Claim() error {
	if pid, running := p.IsRunning(); running {
		return fmt.Errorf("%w (pid %d)", ErrRunning, pid)
	}
	return p.Remove()
}

// Remove deletes the file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveIfOwned deletes the file only when it still names pid, so a daemon
// shutting down late cannot remove the file of its replacement.
func (p *PIDFile) RemoveIfOwned(pid int) (bool, error) {
	cur, err := p.Read()
	if err != nil || cur != pid {
		return false, nil
	}
	return true, p.Remove()
}
