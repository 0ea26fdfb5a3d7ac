package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wirehttp/wirehttp/internal/events"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"http://example.com/a/very/long/path", 10, "http://..."},
		{"abcdef", 3, "abc"},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.n); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestRenderFeedRow_IncludesStatusAndMethod(t *testing.T) {
	row := feedRow{
		at:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		kind:   events.KindCompleted,
		method: "GET",
		url:    "http://example.com",
		status: 200,
	}
	line := renderFeedRow(row)
	if !strings.Contains(line, "GET") || !strings.Contains(line, "200") {
		t.Errorf("rendered row missing expected fields: %q", line)
	}
}

func TestRootModel_QuitOnQKey(t *testing.T) {
	bus := events.NewBus()
	model, unsubscribe := NewRootModel(bus, nil)
	defer unsubscribe()

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	rm := updated.(RootModel)
	if !rm.quit {
		t.Fatal("expected quit to be set after 'q'")
	}
	if cmd == nil {
		t.Fatal("expected tea.Quit command")
	}
}

func TestRootModel_EventAppendsToFeed(t *testing.T) {
	bus := events.NewBus()
	model, unsubscribe := NewRootModel(bus, nil)
	defer unsubscribe()

	sized, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = sized.(RootModel)

	ev := events.Event{Kind: events.KindStarted, ExchangeID: "1", Method: "GET", URL: "http://x"}
	updated, _ := model.Update(eventMsg(ev))
	rm := updated.(RootModel)
	if len(rm.feed) != 1 {
		t.Fatalf("expected 1 feed row, got %d", len(rm.feed))
	}
	if rm.feed[0].method != "GET" {
		t.Errorf("expected method GET, got %q", rm.feed[0].method)
	}
}
