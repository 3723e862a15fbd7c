package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksByName(checks []Check) map[string]Check {
	m := make(map[string]Check, len(checks))
	for _, c := range checks {
		m[c.Name] = c
	}
	return m
}

func TestRunChecks_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	checks := RunChecks(dir, Info{Path: dir})

	require.Len(t, checks, 6)
	for _, c := range checks {
		assert.False(t, c.Passed, "check %s should fail in empty dir", c.Name)
	}
}

func TestRunChecks_PreparedGoProject(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"CLAUDE.md", "README.md", ".gitignore", "go.mod"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "internal", "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "internal", "app", "app_test.go"), []byte("package app"), 0o644))

	info := Info{Path: dir, Language: "go", IsRepo: true, RepoRoot: dir, Branch: "main"}
	checks := RunChecks(dir, info)
	for _, c := range checks {
		assert.True(t, c.Passed, "check %s should pass: %s", c.Name, c.Detail)
	}
}

func TestRunChecks_DirtyTree(t *testing.T) {
	dir := t.TempDir()
	got := checksByName(RunChecks(dir, Info{IsRepo: true, Dirty: true, Branch: "wip"}))
	assert.False(t, got["Clean tree"].Passed)
	assert.Contains(t, got["Clean tree"].Detail, "wip")
}

func TestRunChecks_AgentsFileCounts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(""), 0o644))

	got := checksByName(RunChecks(dir, Info{}))
	assert.True(t, got["Agent instructions"].Passed)
	assert.Equal(t, "AGENTS.md found", got["Agent instructions"].Detail)
}

func TestCheckHasTests(t *testing.T) {
	t.Run("python tests dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))
		assert.True(t, checkHasTests(dir, "python").Passed)
	})
	t.Run("javascript spec", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app.spec.ts"), []byte(""), 0o644))
		assert.True(t, checkHasTests(dir, "javascript").Passed)
	})
	t.Run("skips node_modules", func(t *testing.T) {
		dir := t.TempDir()
		nm := filepath.Join(dir, "node_modules", "lib")
		require.NoError(t, os.MkdirAll(nm, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(nm, "x.test.js"), []byte(""), 0o644))
		assert.False(t, checkHasTests(dir, "javascript").Passed)
	})
	t.Run("unknown language", func(t *testing.T) {
		assert.False(t, checkHasTests(t.TempDir(), "").Passed)
	})
}
