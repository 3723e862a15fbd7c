package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pilot/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper and the shared store
	viper.Reset()
	setDefaults(dir)
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})

	// Initialize output
	var out bytes.Buffer
	ui = output.New()
	ui.Out = &out
	ui.ErrOut = &out

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pilot configuration")
	assert.Contains(t, string(data), "use_cli_auth: true")
	assert.Contains(t, string(data), `settle_interval: "1.5s"`)
	assert.Contains(t, string(data), "port: 8417")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pilot configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	os.Setenv("PILOT_TEST_KEY", "val")
	defer os.Unsetenv("PILOT_TEST_KEY")
	assert.Contains(t, detectSource("test_key", "PILOT_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "PILOT_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "PILOT_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigShow_ReportsFileSource(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("serve:\n  port: 9000\n"), 0o644))

	fileValues := readConfigFileValues(cfgPath)
	assert.True(t, fileValues["serve.port"])
	assert.Equal(t, "(file)", detectSource("serve.port", "PILOT_SERVE_PORT_UNSET", fileValues))
	assert.Equal(t, "(default)", detectSource("jira.max_results", "PILOT_JIRA_MAX_RESULTS_UNSET", fileValues))
}

// outputOf returns everything written to ui since testEnv.
func outputOf(t *testing.T) string {
	t.Helper()
	buf, ok := ui.Out.(*bytes.Buffer)
	require.True(t, ok, "testEnv must install a buffer")
	return buf.String()
}

func TestEnvVarFor(t *testing.T) {
	assert.Equal(t, "PILOT_STATE_DIR", envVarFor("state_dir"))
	assert.Equal(t, "PILOT_WORKFLOW_SETTLE_INTERVAL", envVarFor("workflow.settle_interval"))
}

func TestConfigShow_RedactsSentryDSN(t *testing.T) {
	testEnv(t)
	viper.Set("telemetry.sentry_dsn", "https://secret@sentry.example/1")

	require.NoError(t, configShowRun())

	out := outputOf(t)
	assert.Contains(t, out, "telemetry.sentry_dsn")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "secret@sentry")
	assert.Contains(t, out, "acceptEdits")
}
