// Package tui renders the interactive workflow setup screen.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/pilot/internal/models"
	"github.com/joescharf/pilot/internal/workflow"
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	dimStyle    = lipgloss.NewStyle().Faint(true)
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle   = lipgloss.NewStyle().Faint(true).MarginTop(1)

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1).
			MarginTop(1)
)

// — steps ———————————————————————————————————————————————————————————————————

// Step is one line of the initialization checklist.
type Step struct {
	Label    string
	Active   bool
	Complete bool
}

// StepLabels are the four initialization steps in order.
var StepLabels = [4]string{
	"Select Working Directory",
	"Initialize Agent Process",
	"Configure Environment",
	"Workflow Ready",
}

// Steps maps the initializer state onto the checklist. Nothing is active
// before credentials are configured.
func Steps(state models.InitState) []Step {
	active := -1
	switch state {
	case models.InitStateDirectorySelect:
		active = 0
	case models.InitStateStartingAgent:
		active = 1
	case models.InitStateConfiguring:
		active = 2
	case models.InitStateReady:
		active = 3
	}
	steps := make([]Step, len(StepLabels))
	for i, label := range StepLabels {
		steps[i] = Step{
			Label:    label,
			Active:   i == active,
			Complete: i < active || (state == models.InitStateReady && i == active),
		}
	}
	return steps
}

// — messages ————————————————————————————————————————————————————————————————

type directorySelectedMsg struct {
	dir string
	err error
}

func selectDirectoryCmd(svc *workflow.Service, path string) tea.Cmd {
	return func() tea.Msg {
		dir, err := svc.SelectDirectory(context.Background(), path)
		return directorySelectedMsg{dir: dir, err: err}
	}
}

func refreshCmd(svc *workflow.Service) tea.Cmd {
	return func() tea.Msg {
		svc.Refresh(context.Background())
		return nil
	}
}

// — model ———————————————————————————————————————————————————————————————————

// Model is the setup screen. It only drives the workflow service and renders
// its snapshot; all state lives in the service.
type Model struct {
	svc     *workflow.Service
	spinner spinner.Model
	input   textinput.Model
	snap    workflow.Snapshot
	inputOK bool
	err     string
	width   int
}

// New returns the setup screen for svc. defaultDir pre-fills the directory input.
func New(svc *workflow.Service, defaultDir string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = activeStyle

	ti := textinput.New()
	ti.Placeholder = "/path/to/project"
	ti.CharLimit = 1024
	ti.Width = 60
	ti.SetValue(defaultDir)

	m := Model{svc: svc, spinner: sp, input: ti}
	m.sync()
	return m
}

// Snapshot returns the last workflow snapshot the screen rendered.
func (m Model) Snapshot() workflow.Snapshot { return m.snap }

// sync refreshes the snapshot and focuses the input only while a directory
// can be chosen.
func (m *Model) sync() {
	m.snap = m.svc.Snapshot()
	want := m.snap.State == models.InitStateDirectorySelect || m.snap.State == models.InitStateReady
	if want && !m.inputOK {
		m.input.Focus()
	} else if !want && m.inputOK {
		m.input.Blur()
	}
	m.inputOK = want
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, refreshCmd(m.svc))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.sync()
		return m, cmd

	case directorySelectedMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.err = ""
		}
		m.sync()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if !m.inputOK {
				return m, nil
			}
			path := strings.TrimSpace(m.input.Value())
			if path == "" {
				m.err = "Enter a directory path."
				return m, nil
			}
			m.err = ""
			return m, selectDirectoryCmd(m.svc, path)
		case "ctrl+r":
			return m, refreshCmd(m.svc)
		}
	}

	if !m.inputOK {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("pilot setup"))
	b.WriteString("\n")

	if m.snap.State == models.InitStateCredentialCheck {
		b.WriteString(warnStyle.Render("Jira credentials are not configured."))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Run `pilot integrations jira set`, then press ctrl+r."))
		b.WriteString("\n\n")
	}

	for _, s := range Steps(m.snap.State) {
		b.WriteString(m.renderStep(s))
		b.WriteString("\n")
	}

	if m.inputOK {
		b.WriteString("\n")
		b.WriteString("Working directory\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	} else if m.snap.Directory != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Directory: " + m.snap.Directory))
		b.WriteString("\n")
	}

	if m.err != "" {
		b.WriteString(errStyle.Render(m.err))
		b.WriteString("\n")
	}

	b.WriteString(statusBoxStyle.Render(renderStatus(m.snap.Agent)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter select directory • ctrl+r re-check • esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStep(s Step) string {
	switch {
	case s.Complete:
		return okStyle.Render("✓ ") + s.Label
	case s.Active:
		return m.spinner.View() + " " + activeStyle.Render(s.Label)
	default:
		return dimStyle.Render("○ " + s.Label)
	}
}

func renderStatus(s models.StatusSnapshot) string {
	label := string(s.Status)
	switch s.Status {
	case models.AgentStatusError:
		label = errStyle.Render(label)
	case models.AgentStatusCompleted:
		label = okStyle.Render(label)
	case models.AgentStatusProcessing, models.AgentStatusThinking:
		label = activeStyle.Render(label)
	default:
		label = dimStyle.Render(label)
	}
	return fmt.Sprintf("Agent %s  %s", label, s.Detail)
}

// Run shows the setup screen until the user quits and returns the final snapshot.
func Run(svc *workflow.Service, defaultDir string) (workflow.Snapshot, error) {
	p := tea.NewProgram(New(svc, defaultDir))
	final, err := p.Run()
	if err != nil {
		return workflow.Snapshot{}, fmt.Errorf("run setup screen: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.svc.Snapshot(), nil
	}
	return svc.Snapshot(), nil
}
