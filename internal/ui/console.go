package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/apprunner/internal/console"
	"github.com/harshul/apprunner/internal/proctree"
	"github.com/harshul/apprunner/internal/supervisor"
)

// Controller is the part of the supervisor the console drives.
type Controller interface {
	Run(cfg supervisor.RunConfig) error
	Stop() error
	HandleShutdown(choice supervisor.ShutdownChoice) bool
	State() supervisor.State
	PID() int
	Events() <-chan supervisor.Event
}

type mode int

const (
	modeNormal mode = iota
	modeCommand
	modeConfirmQuit
)

// Messages for bubbletea
type tickMsg time.Time
type eventMsg struct{ ev supervisor.Event }
type eventsClosedMsg struct{}
type usageMsg struct {
	usage proctree.Usage
	ok    bool
}
type actionDoneMsg struct {
	action string
	err    error
}

// ConsoleModel is the interactive console for a single dev server.
type ConsoleModel struct {
	ctl Controller
	cfg supervisor.RunConfig

	buffer *console.Buffer
	state  supervisor.State
	port   string
	exit   *int
	usage  proctree.Usage
	hasUse bool

	width    int
	height   int
	viewport viewport.Model
	input    textinput.Model
	mode     mode
	showHelp bool
	quitting bool

	keys   keyMap
	styles *Styles

	// openURL is swapped out in tests.
	openURL func(url string) error
}

// NewConsole creates a console for cfg. The run starts with the program.
func NewConsole(ctl Controller, cfg supervisor.RunConfig) *ConsoleModel {
	vp := viewport.New(80, 20)
	vp.SetContent("")
	vp.MouseWheelEnabled = true

	ti := textinput.New()
	ti.Placeholder = cfg.Command
	ti.Prompt = "$ "
	ti.CharLimit = 256
	ti.Width = 60

	return &ConsoleModel{
		ctl:      ctl,
		cfg:      cfg,
		buffer:   console.NewBuffer(console.DefaultMaxLines),
		state:    ctl.State(),
		viewport: vp,
		input:    ti,
		keys:     defaultKeyMap(),
		styles:   DefaultStyles(),
		openURL:  OpenInBrowser,
	}
}

// Init implements tea.Model
func (m *ConsoleModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.listenForEvents(),
		m.runCmd(m.cfg),
	)
}

// tickCmd returns a command that ticks every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenForEvents waits for the next supervisor event.
func (m *ConsoleModel) listenForEvents() tea.Cmd {
	events := m.ctl.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m *ConsoleModel) runCmd(cfg supervisor.RunConfig) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return actionDoneMsg{action: "run", err: ctl.Run(cfg)}
	}
}

func (m *ConsoleModel) stopCmd() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return actionDoneMsg{action: "stop", err: ctl.Stop()}
	}
}

// shutdownCmd applies choice. The program quits once the event stream is
// closed.
func (m *ConsoleModel) shutdownCmd(choice supervisor.ShutdownChoice) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctl.HandleShutdown(choice)
		return nil
	}
}

func (m *ConsoleModel) fetchUsage() tea.Cmd {
	pid := m.ctl.PID()
	if pid <= 0 {
		return func() tea.Msg { return usageMsg{} }
	}
	return func() tea.Msg {
		u, err := proctree.TreeUsage(pid)
		return usageMsg{usage: u, ok: err == nil}
	}
}

// Update implements tea.Model
func (m *ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case modeCommand:
			return m, m.updateCommandInput(msg)
		case modeConfirmQuit:
			return m, m.updateConfirmQuit(msg)
		}
		cmds = append(cmds, m.handleKey(msg))

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.updateViewportContent()

	case tickMsg:
		cmds = append(cmds, tickCmd(), m.fetchUsage())

	case usageMsg:
		m.usage = msg.usage
		m.hasUse = msg.ok

	case eventMsg:
		m.applyEvent(msg.ev)
		cmds = append(cmds, m.listenForEvents())

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case actionDoneMsg:
		if msg.err != nil {
			m.appendActionError(msg.err)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *ConsoleModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.state.Live() {
			m.mode = modeConfirmQuit
			return nil
		}
		m.quitting = true
		return m.shutdownCmd(supervisor.ChoiceStopAndExit)

	case key.Matches(msg, m.keys.Run):
		return m.runCmd(m.cfg)

	case key.Matches(msg, m.keys.Stop):
		return m.stopCmd()

	case key.Matches(msg, m.keys.Custom):
		m.mode = modeCommand
		m.input.SetValue("")
		m.resize()
		return m.input.Focus()

	case key.Matches(msg, m.keys.OpenURL):
		if url := m.URL(); url != "" {
			if err := m.openURL(url); err != nil {
				m.appendLine(console.Colored("Could not open browser: "+err.Error()+"\n", console.Yellow))
			}
		}

	case key.Matches(msg, m.keys.Clear):
		m.buffer.Clear()
		m.updateViewportContent()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.resize()

	case key.Matches(msg, m.keys.Up, m.keys.Down, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// updateCommandInput edits the custom command line. Enter runs it in the
// project directory with the same runtime as the main command.
func (m *ConsoleModel) updateCommandInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return nil
	case tea.KeyEnter:
		line := strings.TrimSpace(m.input.Value())
		m.closeInput()
		if line == "" {
			return nil
		}
		cfg := m.cfg
		cfg.Command = line
		cfg.Install = false
		return m.runCmd(cfg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *ConsoleModel) closeInput() {
	m.mode = modeNormal
	m.input.Blur()
	m.resize()
}

// updateConfirmQuit answers "a process is still running, quit anyway?".
func (m *ConsoleModel) updateConfirmQuit(msg tea.KeyMsg) tea.Cmd {
	var choice supervisor.ShutdownChoice
	switch msg.String() {
	case "y", "Y", "enter":
		choice = supervisor.ChoiceStopAndExit
	case "n", "N":
		choice = supervisor.ChoiceExitWithoutStopping
	case "c", "C", "esc":
		m.mode = modeNormal
		return nil
	case "ctrl+c":
		choice = supervisor.ChoiceStopAndExit
	default:
		return nil
	}
	m.mode = modeNormal
	m.quitting = true
	return m.shutdownCmd(choice)
}

func (m *ConsoleModel) applyEvent(ev supervisor.Event) {
	switch ev := ev.(type) {
	case supervisor.LogEvent:
		m.appendLine(ev.Segments)
	case supervisor.StateEvent:
		m.state = ev.State
		switch ev.State {
		case supervisor.Starting:
			m.port = ""
			m.exit = nil
		case supervisor.Running:
			if ev.Port != "" {
				m.port = ev.Port
			}
		case supervisor.Idle:
			m.port = ""
			m.exit = ev.ExitCode
			m.hasUse = false
		}
	}
}

func (m *ConsoleModel) appendActionError(err error) {
	switch {
	case errors.Is(err, supervisor.ErrBusy):
		m.appendLine(console.Colored("A process is already running. Stop it first.\n", console.Yellow))
	case errors.Is(err, supervisor.ErrClosed):
		m.appendLine(console.Colored("Shutting down, no new runs accepted.\n", console.Yellow))
	}
}

func (m *ConsoleModel) appendLine(segs []console.Segment) {
	m.buffer.Append(segs)
	m.updateViewportContent()
}

// URL returns the local address of the running server, if a port was seen.
func (m *ConsoleModel) URL() string {
	if m.port == "" {
		return ""
	}
	return "http://localhost:" + m.port
}

// Status returns the one-line status shown in the header.
func (m *ConsoleModel) Status() string {
	name := m.cfg.Name
	switch m.state {
	case supervisor.Starting:
		return "Starting: " + name
	case supervisor.Installing:
		return "Installing dependencies: " + name
	case supervisor.Running:
		if m.port != "" {
			return fmt.Sprintf("Running: %s (Port: %s)", name, m.port)
		}
		return "Running: " + name
	case supervisor.Stopping:
		return "Stopping: " + name
	case supervisor.Failed:
		return "Failed: " + name
	}
	if m.exit != nil {
		return fmt.Sprintf("Ready (last exit code %d)", *m.exit)
	}
	return "Ready"
}

func (m *ConsoleModel) resize() {
	if m.width == 0 {
		return
	}
	// header(2) + footer(2) + margins
	reserved := 5
	if m.mode == modeCommand || m.mode == modeConfirmQuit {
		reserved++
	}
	if m.showHelp {
		reserved += len(m.keys.full())
	}
	m.viewport.Width = m.width - 2
	m.viewport.Height = max(m.height-reserved, 1)
	m.input.Width = max(m.width-6, 10)
}

// updateViewportContent updates the viewport with the buffered output
func (m *ConsoleModel) updateViewportContent() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.buffer.String())
	// Only follow the output if the user was already at the bottom
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model
func (m *ConsoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.styles.LogViewport.Render(m.viewport.View()))
	b.WriteString("\n")

	switch m.mode {
	case modeCommand:
		b.WriteString(m.input.View())
		b.WriteString("\n")
	case modeConfirmQuit:
		b.WriteString(m.renderQuitPrompt())
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(m.renderHelp())
	}
	b.WriteString(m.renderFooter())
	return m.styles.App.Render(b.String())
}

func (m *ConsoleModel) renderHeader() string {
	title := m.styles.Title.Render("▶ apprunner")
	status := m.styles.status(m.state).Render(m.Status())

	right := ""
	if m.hasUse && m.state.Live() {
		right = m.styles.Usage.Render(m.usage.String())
	}

	width := max(m.width-2, 40)
	gap := width - lipgloss.Width(title) - lipgloss.Width(status) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	line := title + "  " + status + strings.Repeat(" ", gap) + right
	return m.styles.Header.Width(width).Render(line)
}

func (m *ConsoleModel) renderQuitPrompt() string {
	k := m.styles.PromptKey.Render
	return m.styles.Prompt.Render("A process is still running. Stop it and exit? ") +
		k("[y]") + " stop & exit  " + k("[n]") + " leave running  " + k("[c]") + " cancel"
}

func (m *ConsoleModel) renderHelp() string {
	var b strings.Builder
	for _, kb := range m.keys.full() {
		h := kb.Help()
		b.WriteString("  " + m.styles.HelpKey.Render(fmt.Sprintf("%-6s", h.Key)) + " " + m.styles.HelpDesc.Render(h.Desc) + "\n")
	}
	return b.String()
}

func (m *ConsoleModel) renderFooter() string {
	var parts []string
	for _, kb := range m.keys.short() {
		h := kb.Help()
		parts = append(parts, m.styles.HelpKey.Render(h.Key)+" "+m.styles.HelpDesc.Render(h.Desc))
	}
	if url := m.URL(); url != "" {
		parts = append(parts, m.styles.StatusRunning.Render(url))
	}
	return m.styles.Footer.Width(max(m.width-2, 40)).Render(strings.Join(parts, " • "))
}

// RunConsole runs the console until the supervisor's event stream closes.
func RunConsole(ctl Controller, cfg supervisor.RunConfig) error {
	p := tea.NewProgram(NewConsole(ctl, cfg), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
