package cmd

import (
	"log/slog"

	"github.com/spf13/viper"

	"github.com/joescharf/pilot/internal/agent"
	"github.com/joescharf/pilot/internal/jira"
	"github.com/joescharf/pilot/internal/store"
	"github.com/joescharf/pilot/internal/ticket"
	"github.com/joescharf/pilot/internal/workflow"
	"github.com/joescharf/pilot/internal/workspace"
)

// app is the wired runtime shared by the long-running commands.
type app struct {
	store  store.Store
	host   *agent.Host
	svc    *workflow.Service
	lookup *ticket.Lookup
}

// launchConfig reads the agent command selection from config.
func launchConfig() agent.LaunchConfig {
	return agent.LaunchConfig{
		UseCLIAuth:     viper.GetBool("agent.use_cli_auth"),
		Command:        viper.GetString("agent.command"),
		Args:           viper.GetStringSlice("agent.args"),
		PermissionMode: viper.GetString("agent.permission_mode"),
	}
}

// newLookup builds the ticket lookup over the Jira REST client.
func newLookup(s store.Store, log *slog.Logger) *ticket.Lookup {
	return &ticket.Lookup{
		Fetcher:     jira.Fetcher{Logger: log},
		Credentials: s,
		Cache:       s,
	}
}

// newApp opens the store and wires the agent host, workflow service and
// ticket lookup. onTransition may be nil.
func newApp(log *slog.Logger, onTransition func(workflow.Transition)) (*app, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	launch := launchConfig()
	host := agent.NewHost(agent.HostConfig{
		Launch:    launch,
		MinSettle: viper.GetDuration("workflow.settle_interval"),
		Logger:    log,
	})

	svc := workflow.NewService(workflow.ServiceConfig{
		Config: workflow.Config{
			Credentials:  s,
			Agent:        host,
			UseCLIAuth:   launch.UseCLIAuth,
			Logger:       log,
			OnTransition: onTransition,
		},
		Sessions: s,
		Prompter: host,
		Resolve:  workspace.Resolve,
	})

	return &app{
		store:  s,
		host:   host,
		svc:    svc,
		lookup: newLookup(s, log),
	}, nil
}

// Close stops the state machine and the live agent.
func (a *app) Close() {
	a.svc.Close()
	_ = a.host.Close()
}
