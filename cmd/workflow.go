package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/output"
	"github.com/joescharf/pilot/internal/workflow"
	"github.com/joescharf/pilot/internal/workspace"
)

var (
	workflowTimeout  time.Duration
	workflowNoPrompt bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow [dir]",
	Short: "Initialize the agent for a directory and send it prompts",
	Long: `Run workflow initialization in the foreground.

Checks Jira credentials, selects the working directory (prompting when
none is given), starts the agent subprocess and waits until the workflow
is ready. Afterwards each line read from stdin is sent to the agent as a
prompt until EOF or "exit".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return workflowRun(ctx, dir)
	},
}

func init() {
	workflowCmd.Flags().DurationVar(&workflowTimeout, "timeout", 2*time.Minute, "How long to wait for the workflow to become ready")
	workflowCmd.Flags().BoolVar(&workflowNoPrompt, "no-prompt", false, "Exit once the workflow is ready")
	rootCmd.AddCommand(workflowCmd)
}

func workflowRun(ctx context.Context, dir string) error {
	settled := make(chan workflow.Transition, 1)
	a, err := newApp(newLogger(ui.ErrOut, slog.LevelWarn), func(t workflow.Transition) {
		printTransition(t)
		if t.To == models.InitStateReady || t.Err != nil {
			select {
			case settled <- t:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	a.svc.Refresh(ctx)
	if a.svc.Snapshot().State == models.InitStateCredentialCheck {
		return errors.New("Jira credentials are not configured; run 'pilot integrations jira set' first")
	}

	in := bufio.NewReader(stdin)
	if dir == "" {
		picker := &workspace.PromptPicker{In: in, Out: ui.Out}
		dir, err = picker.Pick(ctx)
		if err != nil {
			return err
		}
		if dir == "" {
			ui.Info("No directory selected.")
			return nil
		}
	}

	resolved, err := a.svc.SelectDirectory(ctx, dir)
	if err != nil {
		return err
	}
	printWorkspace(workspace.NewInspector().Inspect(resolved))

	timer := time.NewTimer(workflowTimeout)
	defer timer.Stop()
	select {
	case t := <-settled:
		if t.Err != nil {
			ui.VerboseLog("%v", t.Err)
			return errors.New(workflow.DetailStartFailed)
		}
	case <-timer.C:
		return fmt.Errorf("workflow not ready after %s", workflowTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	ui.Success(workflow.DetailReady)
	if workflowNoPrompt {
		return nil
	}
	return promptLoop(ctx, a.svc, in, ui.Out)
}

// promptLoop sends each non-empty input line to the agent and prints the reply.
func promptLoop(ctx context.Context, svc *workflow.Service, in *bufio.Reader, out io.Writer) error {
	for {
		fmt.Fprint(out, output.Cyan("> "))
		line, err := in.ReadString('\n')
		text := strings.TrimSpace(line)
		switch {
		case text == "exit" || text == "quit":
			return nil
		case text != "":
			res, perr := svc.Prompt(ctx, text)
			if perr != nil {
				ui.Error("%s", svc.Snapshot().Agent.Detail)
				ui.VerboseLog("%v", perr)
			} else {
				fmt.Fprintln(out, res.Text)
				ui.VerboseLog("stop reason: %s", res.StopReason)
			}
		}
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printTransition(t workflow.Transition) {
	if t.Reset {
		ui.VerboseLog("session reset (generation %d)", t.Generation)
	}
	if t.From == t.To {
		return
	}
	ui.Info("%s → %s", output.StateColor(string(t.From)), output.StateColor(string(t.To)))
}

func printWorkspace(info workspace.Info) {
	ui.Field("Directory", info.Path)
	if info.Language != "" {
		ui.Field("Language", info.Language)
	}
	if info.GoModule != "" {
		ui.Field("Module", info.GoModule)
	}
	if info.IsRepo {
		branch := info.Branch
		if info.Dirty {
			branch += output.Yellow(" (dirty)")
		}
		ui.Field("Branch", branch)
		if info.Commit != "" {
			ui.Field("Commit", info.Commit)
		}
	}
	for _, c := range info.Checks {
		if c.Passed {
			ui.VerboseLog("%s: %s", c.Name, c.Detail)
		} else {
			ui.Warning("%s: %s", c.Name, c.Detail)
		}
	}
}
