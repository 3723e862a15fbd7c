package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/pilot/internal/output"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List workflow initialization attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsRun(context.Background())
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Maximum number of sessions")
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	sessions, err := s.ListWorkflowSessions(ctx, sessionsLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.Info("No workflow sessions yet.")
		return nil
	}

	table := ui.Table([]string{"Started", "Directory", "State", "Outcome", "Duration", "Error"})
	for _, ws := range sessions {
		duration := "-"
		if ws.EndedAt != nil {
			duration = ws.EndedAt.Sub(ws.StartedAt).Round(100 * time.Millisecond).String()
		}
		_ = table.Append([]string{
			timeAgo(ws.StartedAt),
			ws.ProjectRoot,
			output.StateColor(string(ws.State)),
			output.OutcomeColor(ws.Outcome),
			duration,
			truncate(ws.Error, 40),
		})
	}
	return table.Render()
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
