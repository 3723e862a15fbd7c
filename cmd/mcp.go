package cmd

import (
	"io"
	"log/slog"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/pilot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client select the working directory, watch workflow
status and look up Jira tickets. Configure it with:

  {
    "mcpServers": {
      "pilot": { "command": "pilot", "args": ["mcp"] }
    }
  }

Available tools: pilot_status, pilot_select_directory, pilot_lookup_ticket,
pilot_recent_tickets, pilot_prompt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		// stdout carries the protocol; logs go to stderr only when verbose.
		var logOut io.Writer = io.Discard
		if verbose {
			logOut = ui.ErrOut
		}
		log := newLogger(logOut, slog.LevelWarn)

		a, err := newApp(log, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		a.svc.Refresh(ctx)

		srv := mcp.NewServer(a.svc, a.lookup, a.store, buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
