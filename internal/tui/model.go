// Package tui is an optional live dashboard for `rote --watch`: a single
// Bubble Tea model tracking schedule progress and a scrolling log of
// task starts/completions/failures, fed by an events.Bus subscription.
// Adapted from the teacher's internal/tui (model.go's
// subscribe-then-waitForEvent loop, dag_pane.go's progress-bar
// rendering, styles.go's palette), collapsed from the teacher's
// multi-pane agent/DAG/settings layout down to the single progress pane
// this domain needs -- there is no per-agent output stream or live
// settings editor here.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/rote/internal/events"
)

const maxLogLines = 200

// Model is the root Bubble Tea model for the build dashboard.
type Model struct {
	eventSub <-chan events.Event

	total, completed, running, failed int
	log                                []string

	width, height int
	quitting      bool
}

// New creates a dashboard model subscribed to every event on bus.
func New(bus *events.Bus) Model {
	return Model{eventSub: bus.SubscribeAll(256)}
}

// Init starts waiting for the first event.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil
		}
		return event
	}
}

// Update handles key presses and incoming build events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case events.ScheduleComputedEvent:
		m.total = msg.Total
		m.running = 0
		m.completed = 0
		m.failed = 0
		return m, waitForEvent(m.eventSub)

	case events.TaskStartedEvent:
		m.running++
		m.appendLog(fmt.Sprintf("[%d/%d] started %s", msg.Index, msg.Total, msg.Name))
		return m, waitForEvent(m.eventSub)

	case events.TaskCompletedEvent:
		m.running--
		m.completed++
		m.appendLog(fmt.Sprintf("done    %s (%dms)", msg.Name, msg.DurationMS))
		return m, waitForEvent(m.eventSub)

	case events.TaskFailedEvent:
		m.running--
		m.failed++
		m.appendLog(fmt.Sprintf("FAILED  %s: %v", msg.Name, msg.Err))
		return m, waitForEvent(m.eventSub)

	case events.RunFinishedEvent:
		if msg.Succeeded {
			m.appendLog("run finished: success")
		} else {
			m.appendLog(fmt.Sprintf("run finished: %v", msg.Err))
		}
		return m, waitForEvent(m.eventSub)
	}

	return m, nil
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// View renders the dashboard: a progress bar and counts up top, a
// scrolling task log below.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var b strings.Builder
	title := StyleTitle.Render("rote")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))

	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("\n[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	b.WriteString("\n")
	logHeight := m.height - 12
	start := 0
	if len(m.log) > logHeight {
		start = len(m.log) - logHeight
	}
	for _, line := range m.log[start:] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	content := StyleBorder.Width(m.width - 2).Height(m.height - 3).Render(b.String())
	help := StyleHelp.Render("q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, content, help)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
