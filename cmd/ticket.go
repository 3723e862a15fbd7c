package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pilot/internal/jira"
	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/output"
	"github.com/joescharf/pilot/internal/ticket"
)

var (
	ticketJSON   bool
	recentLimit  int
	searchLimit  int
	searchFields = []string{"summary", "issuetype", "priority", "assignee", "status", "created"}
)

var ticketCmd = &cobra.Command{
	Use:   "ticket <KEY>",
	Short: "Look up a Jira ticket",
	Long: `Look up a Jira ticket by key and print its normalized fields.

Missing fields are shown with defaults (Untitled ticket, Unassigned, Unknown).
Found tickets are remembered for 'pilot ticket recent'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketLookupRun(cmd.Context(), args[0])
	},
}

var ticketRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently looked-up tickets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketRecentRun(cmd.Context())
	},
}

var ticketSearchCmd = &cobra.Command{
	Use:   "search <JQL>",
	Short: "Search Jira with a JQL query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketSearchRun(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	ticketCmd.Flags().BoolVar(&ticketJSON, "json", false, "Print the ticket as JSON")
	ticketRecentCmd.Flags().IntVarP(&recentLimit, "limit", "l", 20, "Maximum number of tickets")
	ticketSearchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Maximum number of results (default jira.max_results)")

	ticketCmd.AddCommand(ticketRecentCmd)
	ticketCmd.AddCommand(ticketSearchCmd)
	rootCmd.AddCommand(ticketCmd)
}

func ticketLookupRun(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	t, err := newLookup(s, newLogger(ui.ErrOut, slog.LevelWarn)).Find(ctx, key)
	if err != nil {
		var le *ticket.LookupError
		if errors.As(err, &le) {
			ui.VerboseLog("%v", errors.Unwrap(err))
			return errors.New(le.Message)
		}
		return err
	}

	if ticketJSON {
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}
	printTicket(t)
	return nil
}

func printTicket(t models.Ticket) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(t.Key), t.Title)
	ui.Field("Type", string(t.Type))
	ui.Field("Priority", output.PriorityColor(string(t.Priority)))
	ui.Field("Status", t.Status)
	ui.Field("Assignee", t.Assignee)
	ui.Field("Created", t.Created)
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, t.Description)
}

func ticketRecentRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	tickets, err := s.ListRecentTickets(ctx, recentLimit)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	if len(tickets) == 0 {
		ui.Info("No tickets looked up yet. Use 'pilot ticket <KEY>'.")
		return nil
	}

	table := ui.Table([]string{"Key", "Title", "Type", "Priority", "Status", "Fetched"})
	for _, t := range tickets {
		_ = table.Append([]string{
			t.Key,
			truncate(t.Title, 50),
			string(t.Type),
			output.PriorityColor(string(t.Priority)),
			t.Status,
			timeAgo(t.FetchedAt),
		})
	}
	return table.Render()
}

func ticketSearchRun(ctx context.Context, jql string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	creds, err := s.GetJiraCredentials(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if !creds.Configured() {
		return errors.New("Configure Jira credentials in Integrations before searching.")
	}

	client, err := jira.NewClient(jira.Config{
		BaseURL:  creds.BaseURL,
		Email:    creds.Email,
		APIToken: creds.APIToken,
		Logger:   newLogger(ui.ErrOut, slog.LevelWarn),
	})
	if err != nil {
		return err
	}

	limit := searchLimit
	if limit <= 0 {
		limit = viper.GetInt("jira.max_results")
	}
	issues, err := client.Search(ctx, jql, searchFields, limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(issues) == 0 {
		ui.Info("No tickets match.")
		return nil
	}

	table := ui.Table([]string{"Key", "Title", "Type", "Priority", "Status", "Assignee"})
	for _, raw := range issues {
		t, err := ticket.Normalize(raw, "")
		if err != nil {
			continue
		}
		_ = table.Append([]string{
			t.Key,
			truncate(t.Title, 50),
			string(t.Type),
			output.PriorityColor(string(t.Priority)),
			t.Status,
			t.Assignee,
		})
	}
	return table.Render()
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
