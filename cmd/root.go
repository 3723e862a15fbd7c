package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pilot/internal/output"
	"github.com/joescharf/pilot/internal/store"
	"github.com/joescharf/pilot/internal/telemetry"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "Pilot - ticket-driven workflow setup for a coding agent",
	Long: `pilot prepares a coding agent to work on issue-tracker tickets.
It checks Jira credentials, takes a project directory, starts the agent
subprocess and reports when the workflow is ready. Tickets can be looked
up from the CLI, the HTTP API, the MCP server or the setup screen.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	telemetry.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/pilot/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "pilot.db"))
	viper.SetDefault("agent.use_cli_auth", true)
	viper.SetDefault("agent.command", "")
	viper.SetDefault("agent.args", []string{})
	viper.SetDefault("agent.permission_mode", "acceptEdits")
	viper.SetDefault("workflow.settle_interval", "1500ms")
	viper.SetDefault("jira.max_results", 50)
	viper.SetDefault("serve.port", 8417)
	viper.SetDefault("telemetry.sentry_dsn", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	if err := telemetry.Init(viper.GetString("telemetry.sentry_dsn"), buildVersion); err != nil {
		ui.Warning("Telemetry disabled: %v", err)
	}

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger returns the structured logger used by the workflow and agent
// packages. CLI commands keep it quiet unless --verbose is set.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// rootRun handles `pilot` with no subcommand: show configuration readiness
// and the most recent workflow session.
func rootRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return cmd.Help()
	}
	return statusRun(context.Background(), s)
}

func statusRun(ctx context.Context, s store.Store) error {
	creds, err := s.GetJiraCredentials(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	fmt.Fprintln(ui.Out, output.Cyan("pilot")+" "+buildVersion)
	if creds.Configured() {
		ui.Field("Jira", fmt.Sprintf("%s (%s)", creds.BaseURL, creds.Email))
	} else {
		ui.Field("Jira", output.Yellow("not configured"))
	}
	if cwd, err := os.Getwd(); err == nil {
		ui.Field("Directory", cwd)
	}

	sessions, err := s.ListWorkflowSessions(ctx, 1)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.Field("Last run", "none")
	} else {
		last := sessions[0]
		ui.Field("Last run", fmt.Sprintf("%s %s (%s)",
			output.OutcomeColor(last.Outcome), last.ProjectRoot, timeAgo(last.StartedAt)))
	}

	fmt.Fprintln(ui.Out)
	if !creds.Configured() {
		ui.Info("Configure Jira with 'pilot integrations jira set', then run 'pilot setup'.")
	} else {
		ui.Info("Run 'pilot setup' or 'pilot workflow [dir]' to start the agent.")
	}
	return nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
