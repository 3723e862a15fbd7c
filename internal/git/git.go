// Package git reads repository state for a selected project directory.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Client reads the repository facts shown when a directory is selected.
type Client interface {
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	IsDirty(path string) (bool, error)
	LastCommit(path string) (Commit, error)
	RemoteURL(path string) (string, error)
}

// Commit is the short form of HEAD.
type Commit struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject"`
}

// RealClient implements Client with the git executable.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) IsDirty(path string) (bool, error) {
	out, err := gitCmd(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *RealClient) LastCommit(path string) (Commit, error) {
	out, err := gitCmd(path, "log", "-1", "--format=%h%x00%s")
	if err != nil {
		return Commit{}, err
	}
	hash, subject, _ := strings.Cut(out, "\x00")
	return Commit{Hash: hash, Subject: subject}, nil
}

func (c *RealClient) RemoteURL(path string) (string, error) {
	out, err := gitCmd(path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}
