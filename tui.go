package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vesper/log"
)

// TUI message types
type modeMsg struct {
	Mode   string
	Active bool
}
type utteranceMsg struct{ Text string }
type statusMsg struct{ Text string }
type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	modeStyles = map[string]lipgloss.Style{
		"sleeping":   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		"listening":  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"processing": lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"speaking":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

type tuiModel struct {
	mode      string
	active    bool
	status    string
	utterance string
	frame     int
	width     int
	height    int
}

// startTUI runs the program on its own goroutine; onQuit fires when
// the user exits the TUI.
func startTUI(onQuit func()) {
	tuiMu.Lock()
	tuiProgram = tea.NewProgram(tuiModel{mode: "sleeping"}, tea.WithAltScreen())
	p := tuiProgram
	tuiMu.Unlock()

	go func() {
		if _, err := p.Run(); err != nil {
			log.Errorf("tui: %v", err)
		}
		onQuit()
	}()
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiQuit() {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case modeMsg:
		m.mode = msg.Mode
		m.active = msg.Active
		if msg.Mode != "sleeping" {
			m.status = ""
		}

	case utteranceMsg:
		m.utterance = msg.Text
		m.status = ""

	case statusMsg:
		m.status = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("vesper "+version) + "\n\n")

	style, ok := modeStyles[m.mode]
	if !ok {
		style = modeStyles["sleeping"]
	}
	indicator := " "
	if m.mode == "listening" && m.frame%2 == 0 {
		indicator = "●"
	}
	modeLine := fmt.Sprintf("%s %s", indicator, strings.ToUpper(m.mode))
	if !m.active {
		modeLine += " (handler inactive)"
	}
	b.WriteString(style.Render(modeLine) + "\n\n")

	if m.utterance != "" {
		b.WriteString(textStyle.Render(m.utterance) + "\n\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n\n")
	}

	b.WriteString(helpStyle.Render("hold ctrl+shift+space to talk, tap to interrupt, q to quit"))
	return b.String()
}
