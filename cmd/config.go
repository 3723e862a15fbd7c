package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pilot"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage pilot configuration.

Running bare 'pilot config' is the same as 'pilot config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# pilot configuration
# See: pilot config show (for effective values and sources)

# State/data directory (default: ~/.config/pilot)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/pilot/pilot.db)
# db_path: {{ .DBPath }}

# Agent subprocess
agent:
  # Launch through npx acp-claude-code using the Claude CLI login (default: true)
  use_cli_auth: {{ .UseCLIAuth }}

  # Override the agent executable and its arguments
  command: "{{ .AgentCommand }}"
  # args: []

  # Permission mode passed as ACP_PERMISSION_MODE with CLI auth (default: acceptEdits)
  permission_mode: "{{ .PermissionMode }}"

# Workflow initialization
workflow:
  # Minimum wait after the agent session is established (default: 1500ms)
  settle_interval: "{{ .SettleInterval }}"

# Jira
jira:
  # Maximum issues returned by 'pilot ticket search' (default: 50)
  max_results: {{ .MaxResults }}

# HTTP API
serve:
  port: {{ .Port }}

# Error reporting (empty disables Sentry)
telemetry:
  sentry_dsn: "{{ .SentryDSN }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	UseCLIAuth     bool
	AgentCommand   string
	PermissionMode string
	SettleInterval string
	MaxResults     int
	Port           int
	SentryDSN      string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		UseCLIAuth:     viper.GetBool("agent.use_cli_auth"),
		AgentCommand:   viper.GetString("agent.command"),
		PermissionMode: viper.GetString("agent.permission_mode"),
		SettleInterval: viper.GetDuration("workflow.settle_interval").String(),
		MaxResults:     viper.GetInt("jira.max_results"),
		Port:           viper.GetInt("serve.port"),
		SentryDSN:      viper.GetString("telemetry.sentry_dsn"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeys are the keys shown by 'pilot config show', in display order.
var configKeys = []string{
	"state_dir",
	"db_path",
	"agent.use_cli_auth",
	"agent.command",
	"agent.args",
	"agent.permission_mode",
	"workflow.settle_interval",
	"jira.max_results",
	"serve.port",
	"telemetry.sentry_dsn",
}

// secretKeys are redacted in 'pilot config show'.
var secretKeys = map[string]bool{
	"telemetry.sentry_dsn": true,
}

// envVarFor mirrors the env key replacer set up in initConfig.
func envVarFor(key string) string {
	return "PILOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configShowRun() error {
	cfgPath := viper.ConfigFileUsed()
	if cfgPath == "" {
		var err error
		if cfgPath, err = configFilePath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"KEY", "VALUE", "SOURCE"})
	for _, key := range configKeys {
		val := fmt.Sprint(viper.Get(key))
		if secretKeys[key] && val != "" {
			val = "********"
		}
		_ = table.Append([]string{key, val, detectSource(key, envVarFor(key), fileValues)})
	}
	return table.Render()
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'pilot config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
