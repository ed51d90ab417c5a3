package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type tickMsg time.Time

type summaryMsg struct {
	summary Summary
	err     error
}

// Monitor is a bubbletea model that follows a scan log while a run in
// another process appends to it.
type Monitor struct {
	path     string
	title    string
	interval time.Duration

	summary Summary
	err     error
	updated time.Time
	paused  bool
	width   int
}

// NewMonitor watches the CSV log at path, re-reading it every interval.
func NewMonitor(path, title string, interval time.Duration) Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Monitor{path: path, title: title, interval: interval}
}

func (m Monitor) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), m.load())
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Monitor) load() tea.Cmd {
	path := m.path
	return func() tea.Msg {
		s, err := SummarizeFile(path)
		return summaryMsg{summary: s, err: err}
	}
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
		case "r":
			return m, m.load()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		if m.paused {
			return m, tick(m.interval)
		}
		return m, tea.Batch(tick(m.interval), m.load())
	case summaryMsg:
		m.err = msg.err
		if msg.err == nil {
			m.summary = msg.summary
			m.updated = time.Now()
		}
	}
	return m, nil
}

func (m Monitor) View() string {
	body := RenderSummary(m.title, m.summary)

	status := dimStyle.Render("updated " + m.updated.Format("15:04:05"))
	if m.updated.IsZero() {
		status = dimStyle.Render("waiting for " + m.path)
	}
	if m.paused {
		status = warnStyle.Render("paused")
	}
	if m.err != nil {
		status = critStyle.Render(fmt.Sprintf("read failed: %v", m.err))
	}

	help := helpStyle.Render("q quit  p pause  r refresh")
	return lipgloss.JoinVertical(lipgloss.Left, body, status, help)
}

// Summary returns the last successfully loaded summary.
func (m Monitor) Summary() Summary { return m.summary }
