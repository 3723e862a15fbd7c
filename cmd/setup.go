package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/pilot/internal/output"
	"github.com/joescharf/pilot/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup [dir]",
	Short: "Interactive workflow setup screen",
	Long: `Open the interactive setup screen.

Shows the four initialization steps, takes the working directory and
displays the live agent status until you quit with esc.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		} else if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		}
		return setupRun(dir)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func setupRun(dir string) error {
	// The screen owns the terminal, so logs are discarded unless verbose.
	var logOut io.Writer = io.Discard
	if verbose {
		logOut = ui.ErrOut
	}
	a, err := newApp(newLogger(logOut, slog.LevelWarn), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := tui.Run(a.svc, dir)
	if err != nil {
		return err
	}
	if snap.Ready {
		ui.Success("Workflow was ready for %s", snap.Directory)
	} else {
		ui.Info("Setup ended in %s", output.StateColor(string(snap.State)))
	}
	return nil
}
