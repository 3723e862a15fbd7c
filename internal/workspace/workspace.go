// Package workspace validates and describes the project directory the agent works in.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joescharf/pilot/internal/git"
)

// ErrNotDirectory is returned when a selected path is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Info describes a selected project directory.
type Info struct {
	Path      string  `json:"path"`
	Language  string  `json:"language,omitempty"`
	GoModule  string  `json:"goModule,omitempty"`
	GoVersion string  `json:"goVersion,omitempty"`
	IsRepo    bool    `json:"isRepo"`
	RepoRoot  string  `json:"repoRoot,omitempty"`
	Branch    string  `json:"branch,omitempty"`
	Dirty     bool    `json:"dirty"`
	Commit    string  `json:"commit,omitempty"`
	Remote    string  `json:"remote,omitempty"`
	Checks    []Check `json:"checks"`
}

// Resolve makes path absolute and clean, expands a leading ~, and checks that
// it names an existing directory.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if path == "~" || len(path) > 1 && path[0] == '~' && os.IsPathSeparator(path[1]) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("resolve %s: %w", path, ErrNotDirectory)
	}
	return abs, nil
}

// Inspector gathers Info for a directory.
type Inspector struct {
	Git git.Client
}

// NewInspector returns an Inspector using the git executable.
func NewInspector() *Inspector {
	return &Inspector{Git: git.NewClient()}
}

// Inspect describes path and runs the readiness checks. Git failures only
// mean the directory is not a repo.
func (in *Inspector) Inspect(path string) Info {
	info := in.describe(path)
	info.Checks = RunChecks(path, info)
	return info
}

func (in *Inspector) describe(path string) Info {
	info := Info{Path: path, Language: DetectLanguage(path)}
	if info.Language == "go" {
		info.GoModule, _ = ModulePath(path)
		info.GoVersion, _ = GoVersion(path)
	}
	if in.Git == nil {
		return info
	}

	root, err := in.Git.RepoRoot(path)
	if err != nil {
		return info
	}
	info.IsRepo = true
	info.RepoRoot = root
	info.Branch, _ = in.Git.CurrentBranch(path)
	info.Dirty, _ = in.Git.IsDirty(path)
	if c, err := in.Git.LastCommit(path); err == nil && c.Hash != "" {
		info.Commit = c.Hash + " " + c.Subject
	}
	info.Remote, _ = in.Git.RemoteURL(path)
	return info
}
