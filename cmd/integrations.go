package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pilot/internal/models"
)

var (
	jiraURL   string
	jiraEmail string
	jiraToken string
)

// stdin is the reader interactive commands prompt from, replaceable in tests.
var stdin io.Reader = os.Stdin

var integrationsCmd = &cobra.Command{
	Use:     "integrations",
	Aliases: []string{"int"},
	Short:   "Manage issue-tracker integrations",
}

var jiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Manage Jira credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return jiraShowRun()
	},
}

var jiraSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save Jira base URL, email and API token",
	Long: `Save the Jira connection settings.

Values not given as flags are prompted for. The API token can also be
supplied through PILOT_JIRA_API_TOKEN so it stays out of shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jiraSetRun()
	},
}

var jiraShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored Jira credentials (token masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return jiraShowRun()
	},
}

var jiraResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored Jira credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return jiraResetRun()
	},
}

func init() {
	jiraSetCmd.Flags().StringVar(&jiraURL, "url", "", "Jira base URL (e.g. https://acme.atlassian.net)")
	jiraSetCmd.Flags().StringVar(&jiraEmail, "email", "", "Account email")
	jiraSetCmd.Flags().StringVar(&jiraToken, "token", "", "API token")

	jiraCmd.AddCommand(jiraSetCmd)
	jiraCmd.AddCommand(jiraShowCmd)
	jiraCmd.AddCommand(jiraResetCmd)
	integrationsCmd.AddCommand(jiraCmd)
	rootCmd.AddCommand(integrationsCmd)
}

func jiraSetRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	current, err := s.GetJiraCredentials(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	token := jiraToken
	if token == "" {
		token = os.Getenv("PILOT_JIRA_API_TOKEN")
	}

	in := bufio.NewReader(stdin)
	creds := models.JiraCredentials{
		BaseURL:  strings.TrimRight(promptValue(in, "Base URL", jiraURL, current.BaseURL), "/"),
		Email:    promptValue(in, "Email", jiraEmail, current.Email),
		APIToken: promptValue(in, "API token", token, current.APIToken),
	}
	if !creds.Configured() {
		return fmt.Errorf("base URL, email and API token are all required")
	}

	if err := s.SaveJiraCredentials(ctx, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	ui.Success("Jira credentials saved")
	printJira(creds)
	return nil
}

// promptValue returns flagVal when set, otherwise asks on stdin with current
// as the default.
func promptValue(in *bufio.Reader, label, flagVal, current string) string {
	if v := strings.TrimSpace(flagVal); v != "" {
		return v
	}
	shown := current
	if label == "API token" && current != "" {
		shown = models.JiraCredentials{APIToken: current}.Masked().APIToken
	}
	if shown != "" {
		fmt.Fprintf(ui.Out, "%s [%s]: ", label, shown)
	} else {
		fmt.Fprintf(ui.Out, "%s: ", label)
	}
	line, _ := in.ReadString('\n')
	if v := strings.TrimSpace(line); v != "" {
		return v
	}
	return current
}

func jiraShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	creds, err := s.GetJiraCredentials(context.Background())
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if !creds.Configured() {
		ui.Info("Jira is not configured. Use 'pilot integrations jira set'.")
		if creds == (models.JiraCredentials{}) {
			return nil
		}
	}
	printJira(creds)
	return nil
}

func printJira(creds models.JiraCredentials) {
	m := creds.Masked()
	ui.Field("Base URL", valueOr(m.BaseURL, "-"))
	ui.Field("Email", valueOr(m.Email, "-"))
	ui.Field("API token", valueOr(m.APIToken, "-"))
}

func jiraResetRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.ResetJiraCredentials(context.Background()); err != nil {
		return fmt.Errorf("reset credentials: %w", err)
	}
	ui.Success("Jira credentials cleared")
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
