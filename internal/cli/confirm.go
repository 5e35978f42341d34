package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	confirmPromptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	confirmMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type confirmModel struct {
	prompt   string
	answered bool
	accepted bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answered = true
		m.accepted = true
		return m, tea.Quit
	case "n", "enter", "esc", "q", "ctrl+c":
		m.answered = true
		m.accepted = false
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		answer := "no"
		if m.accepted {
			answer = "yes"
		}
		return confirmPromptStyle.Render(m.prompt) + " " + answer + "\n"
	}
	return confirmPromptStyle.Render(m.prompt) + " " + confirmMutedStyle.Render("[y/N]") + " "
}

func promptConfirm(prompt string) (bool, error) {
	if !stdinIsTTY() {
		return false, errors.New("confirmation required (rerun with --yes in non-interactive mode)")
	}
	final, err := tea.NewProgram(confirmModel{prompt: prompt}).Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	m, ok := final.(confirmModel)
	if !ok {
		return false, errors.New("confirmation prompt: unexpected model")
	}
	return m.accepted, nil
}
