package ui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrPromptCancelled is returned when the user leaves a prompt with esc.
var ErrPromptCancelled = errors.New("prompt cancelled")

var (
	promptTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	promptSelectedStyle   = lipgloss.NewStyle().Bold(true).Foreground(success)
	promptUnselectedStyle = lipgloss.NewStyle().Foreground(subtle)
	promptCursorStyle     = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	promptDimStyle        = lipgloss.NewStyle().Foreground(dim)
)

// SelectOption is one entry of a SelectPrompt.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// SelectPrompt picks one option with the arrow keys. Typing filters the
// options by label.
type SelectPrompt struct {
	title     string
	options   []SelectOption
	filter    string
	cursor    int
	confirmed bool
	cancelled bool
}

// NewSelectPrompt creates a prompt with the cursor on the option whose value
// is current, if any.
func NewSelectPrompt(title string, options []SelectOption, current string) *SelectPrompt {
	p := &SelectPrompt{title: title, options: options}
	for i, opt := range options {
		if opt.Value == current {
			p.cursor = i
		}
	}
	return p
}

func (m SelectPrompt) Init() tea.Cmd {
	return nil
}

// visible returns the options matching the filter.
func (m SelectPrompt) visible() []SelectOption {
	if m.filter == "" {
		return m.options
	}
	var out []SelectOption
	needle := strings.ToLower(m.filter)
	for _, opt := range m.options {
		if strings.Contains(strings.ToLower(opt.Label), needle) {
			out = append(out, opt)
		}
	}
	return out
}

func (m SelectPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.Type {
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyDown:
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
	case tea.KeyEnter:
		if len(m.visible()) > 0 {
			m.confirmed = true
			return m, tea.Quit
		}
	case tea.KeyEsc, tea.KeyCtrlC:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyBackspace:
		if m.filter != "" {
			m.filter = m.filter[:len(m.filter)-1]
			m.cursor = 0
		}
	case tea.KeyRunes:
		m.filter += string(keyMsg.Runes)
		m.cursor = 0
	}
	return m, nil
}

func (m SelectPrompt) View() string {
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("? "+m.title) + "\n")
	if m.filter != "" {
		b.WriteString(promptDimStyle.Render("  filter: "+m.filter) + "\n")
	}
	b.WriteString("\n")

	options := m.visible()
	if len(options) == 0 {
		b.WriteString(promptDimStyle.Render("  no matches") + "\n")
	}
	for i, opt := range options {
		cursor := "  "
		style := promptUnselectedStyle
		if i == m.cursor {
			cursor = promptCursorStyle.Render("❯ ")
			style = promptSelectedStyle
		}
		b.WriteString(cursor + style.Render(opt.Label))
		if opt.Description != "" && i == m.cursor {
			b.WriteString(promptDimStyle.Render(" - " + opt.Description))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(promptDimStyle.Render("  ↑ ↓ to navigate • type to filter • enter to select • esc to cancel"))
	return b.String()
}

// Result returns the selected option and whether it was confirmed
func (m SelectPrompt) Result() (SelectOption, bool) {
	options := m.visible()
	if m.cancelled || !m.confirmed || m.cursor >= len(options) {
		return SelectOption{}, false
	}
	return options[m.cursor], true
}

// RunSelectPrompt runs the prompt and returns the chosen value.
func RunSelectPrompt(title string, options []SelectOption, current string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("nothing to choose from")
	}
	model, err := tea.NewProgram(*NewSelectPrompt(title, options, current)).Run()
	if err != nil {
		return "", err
	}
	opt, ok := model.(SelectPrompt).Result()
	if !ok {
		return "", ErrPromptCancelled
	}
	return opt.Value, nil
}
