package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wirehttp/wirehttp/internal/events"
	"github.com/wirehttp/wirehttp/internal/taskrunner"
)

// maxFeedRows bounds how many recent exchange events the monitor keeps on
// screen; older rows scroll off rather than growing the feed unbounded.
const maxFeedRows = 200

// feedRow is one rendered line of exchange activity.
type feedRow struct {
	at     time.Time
	kind   events.Kind
	method string
	url    string
	status int
	detail string
}

// RootModel is the monitor's bubbletea model: a scrolling feed of exchange
// events plus the current TaskRunner scheduler snapshot, redrawn on every
// incoming event or scheduler tick.
type RootModel struct {
	width, height int

	feed     []feedRow
	viewport viewport.Model
	ready    bool

	runner   *taskrunner.Runner
	snapshot taskrunner.Snapshot

	eventCh <-chan events.Event
	quit    bool
}

// NewRootModel builds a monitor model that reads from bus and polls runner
// for scheduler state.
func NewRootModel(bus *events.Bus, runner *taskrunner.Runner) (RootModel, func()) {
	ch, unsubscribe := bus.Subscribe()
	return RootModel{
		eventCh: ch,
		runner:  runner,
		width:   100,
		height:  30,
	}, unsubscribe
}

type eventMsg events.Event
type tickMsg time.Time

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventCh), tick())
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		feedHeight := m.height - 8
		if feedHeight < 4 {
			feedHeight = 4
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-6, feedHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 6
			m.viewport.Height = feedHeight
		}
		m.viewport.SetContent(m.renderFeed())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case eventMsg:
		ev := events.Event(msg)
		m.feed = append(m.feed, feedRow{
			at:     time.Now(),
			kind:   ev.Kind,
			method: ev.Method,
			url:    ev.URL,
			status: ev.StatusCode,
			detail: ev.Detail,
		})
		if len(m.feed) > maxFeedRows {
			m.feed = m.feed[len(m.feed)-maxFeedRows:]
		}
		wasAtBottom := m.viewport.AtBottom()
		m.viewport.SetContent(m.renderFeed())
		if wasAtBottom {
			m.viewport.GotoBottom()
		}
		return m, waitForEvent(m.eventCh)

	case tickMsg:
		if m.runner != nil {
			m.snapshot = m.runner.Snapshot()
		}
		return m, tick()
	}
	return m, nil
}

// renderFeed joins every feed row into the viewport's scrollable content.
func (m RootModel) renderFeed() string {
	rows := make([]string, len(m.feed))
	for i, row := range m.feed {
		rows[i] = renderFeedRow(row)
	}
	return strings.Join(rows, "\n")
}

func (m RootModel) View() string {
	if m.quit || !m.ready {
		return ""
	}

	width := m.width - 4
	height := m.height - 4
	if width < 60 {
		width = 60
	}
	if height < 16 {
		height = 16
	}

	header := fmt.Sprintf("busy: %d   ready: %d   executed: %d   ran: %d   waiting: %v",
		m.snapshot.BusyQueues, m.snapshot.ReadyQueues,
		m.snapshot.ExecuteCallCount, m.snapshot.RunCallCount, m.snapshot.CoordinatorWait)
	headerBox := lipgloss.NewStyle().Foreground(ColorNeonCyan).Render(header)

	help := lipgloss.NewStyle().Foreground(ColorGray).Render("[↑/↓/pgup/pgdn] scroll  [q] quit")

	content := lipgloss.JoinVertical(lipgloss.Left, headerBox, "", m.viewport.View(), "", help)
	box := renderBox("wirehttp monitor", content, width, height, ColorNeonPink)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func renderFeedRow(row feedRow) string {
	ts := row.at.Format("15:04:05")
	var color lipgloss.Color
	var label string
	switch row.kind {
	case events.KindStarted:
		color, label = ColorLightGray, "start"
	case events.KindHeaders:
		color, label = ColorNeonCyan, "headers"
	case events.KindCompleted:
		color, label = ColorGreen, "done"
	case events.KindFailed:
		color, label = ColorRed, "failed"
	default:
		color, label = ColorLightGray, string(row.kind)
	}

	var tail string
	switch {
	case row.detail != "":
		tail = row.detail
	case row.status != 0:
		tail = fmt.Sprintf("%d", row.status)
	}

	line := fmt.Sprintf("%s  %-7s %-6s %-40s %s", ts, label, row.method, truncate(row.url, 40), tail)
	return lipgloss.NewStyle().Foreground(color).Render(line)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
