package tui

import (
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/workflow"
	"github.com/joescharf/pilot/internal/workspace"
)

type staticCreds struct{ creds models.JiraCredentials }

func (s staticCreds) GetJiraCredentials(context.Context) (models.JiraCredentials, error) {
	return s.creds, nil
}

type instantAgent struct{}

func (instantAgent) StartAgent(context.Context, workflow.StartRequest) error { return nil }
func (instantAgent) StopAgent(context.Context, workflow.StartRequest) error  { return nil }

func newService(t *testing.T, configured bool) *workflow.Service {
	t.Helper()
	var creds models.JiraCredentials
	if configured {
		creds = models.JiraCredentials{BaseURL: "https://acme.atlassian.net", Email: "a@b.c", APIToken: "t"}
	}
	svc := workflow.NewService(workflow.ServiceConfig{
		Config: workflow.Config{
			Credentials: staticCreds{creds: creds},
			Agent:       instantAgent{},
			Settle:      workflow.FixedSettle{},
		},
		Resolve: workspace.Resolve,
	})
	t.Cleanup(svc.Close)
	svc.Refresh(context.Background())
	return svc
}

func TestSteps(t *testing.T) {
	tests := []struct {
		state    models.InitState
		active   int
		complete int
	}{
		{models.InitStateCredentialCheck, -1, 0},
		{models.InitStateDirectorySelect, 0, 0},
		{models.InitStateStartingAgent, 1, 1},
		{models.InitStateConfiguring, 2, 2},
		{models.InitStateReady, 3, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			steps := Steps(tt.state)
			require.Len(t, steps, 4)
			complete := 0
			for i, s := range steps {
				assert.Equal(t, StepLabels[i], s.Label)
				assert.Equal(t, i == tt.active, s.Active, "step %d active", i)
				if s.Complete {
					complete++
				}
			}
			assert.Equal(t, tt.complete, complete)
		})
	}
}

func TestView_CredentialCheck(t *testing.T) {
	m := New(newService(t, false), "")
	view := m.View()
	assert.Contains(t, view, "Jira credentials are not configured.")
	assert.Contains(t, view, "Select Working Directory")
	assert.Contains(t, view, workflow.DetailWaiting)
	assert.NotContains(t, view, "Working directory\n")
}

func TestEnter_IgnoredWithoutCredentials(t *testing.T) {
	m := New(newService(t, false), t.TempDir())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestEnter_EmptyPath(t *testing.T) {
	m := New(newService(t, true), "")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, updated.View(), "Enter a directory path.")
}

func TestEnter_SelectsDirectoryAndReachesReady(t *testing.T) {
	svc := newService(t, true)
	m := New(svc, t.TempDir())
	require.Equal(t, models.InitStateDirectorySelect, m.Snapshot().State)
	assert.Contains(t, m.View(), "Working directory")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	sel, ok := msg.(directorySelectedMsg)
	require.True(t, ok)
	require.NoError(t, sel.err)

	updated, _ = updated.Update(msg)
	require.Eventually(t, func() bool { return svc.Snapshot().Ready }, 2*time.Second, 10*time.Millisecond)

	updated, _ = updated.Update(spinner.TickMsg{})
	view := updated.View()
	assert.Equal(t, models.InitStateReady, updated.(Model).Snapshot().State)
	assert.Contains(t, view, "✓ Workflow Ready")
	assert.Contains(t, view, workflow.DetailReady)
}

func TestEnter_InvalidDirectoryShowsError(t *testing.T) {
	m := New(newService(t, true), "/no/such/dir/for/pilot")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	updated, _ := m.Update(cmd())
	assert.Contains(t, updated.View(), "select directory")
	assert.Equal(t, models.InitStateDirectorySelect, updated.(Model).Snapshot().State)
}

func TestQuitKeys(t *testing.T) {
	m := New(newService(t, false), "")
	for _, key := range []tea.KeyMsg{{Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}
