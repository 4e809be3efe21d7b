package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type loginDoneMsg struct {
	err error
}

type loginSpinnerModel struct {
	spinner spinner.Model
	label   string
	login   tea.Cmd
	err     error
	done    bool
}

func newLoginSpinnerModel(label string, login tea.Cmd) loginSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return loginSpinnerModel{
		spinner: s,
		label:   label,
		login:   login,
	}
}

func (m loginSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.login)
}

func (m loginSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case loginDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m loginSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

func runLoginSpinner(ctx context.Context, output io.Writer, login func(context.Context) error) error {
	loginCmd := func() tea.Msg {
		return loginDoneMsg{err: login(ctx)}
	}

	p := tea.NewProgram(
		newLoginSpinnerModel("Logging in to the Grohe cloud...", loginCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(loginSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
