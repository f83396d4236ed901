package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// staticProvider returns a fixed snapshot.
type staticProvider struct {
	data DashboardData
}

func (p *staticProvider) FetchData() DashboardData {
	return p.data
}

func sampleData() DashboardData {
	return DashboardData{
		State:     "connected",
		Detail:    "connected to ws://relay.test",
		Queued:    2,
		Topics:    []string{"sensors/#", "alerts"},
		UIClients: 1,
		Feed: []FeedEntry{
			{Topic: "sensors/temp", Payload: "21.5", ReceivedAt: time.Now()},
			{Topic: "alerts", Payload: "door open", ReceivedAt: time.Now()},
		},
		TotalEvents:  42,
		EventsPerSec: 0.7,
		UniqueTopics: 2,
		TopTopics:    []TopicRow{{Topic: "sensors/temp", Count: 30}},
		StartedAt:    time.Now().Add(-3 * time.Minute),
	}
}

func TestViewRendersAllPanels(t *testing.T) {
	m := NewModel(&staticProvider{data: sampleData()})

	view := m.View()
	for _, want := range []string{"Connection", "Events", "Analytics", "sensors/temp", "Connected"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmptyFeed(t *testing.T) {
	data := sampleData()
	data.Feed = nil
	m := NewModel(&staticProvider{data: data})

	if !strings.Contains(m.View(), "No events yet") {
		t.Error("view missing empty-feed placeholder")
	}
}

func TestTabCyclesPanels(t *testing.T) {
	m := NewModel(&staticProvider{data: sampleData()})

	if m.activePanel != PanelConnection {
		t.Fatalf("initial panel = %v, want %v", m.activePanel, PanelConnection)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.activePanel != PanelFeed {
		t.Errorf("panel after tab = %v, want %v", m.activePanel, PanelFeed)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.activePanel != PanelConnection {
		t.Errorf("panel after full cycle = %v, want %v", m.activePanel, PanelConnection)
	}
}

func TestQuitKey(t *testing.T) {
	m := NewModel(&staticProvider{data: sampleData()})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(Model)

	if !m.quitting {
		t.Error("quitting = false after q")
	}
	if cmd == nil {
		t.Error("q should produce the quit command")
	}
}

func TestFeedScrollClampedAfterRefresh(t *testing.T) {
	data := sampleData()
	provider := &staticProvider{data: data}
	m := NewModel(provider)
	m.activePanel = PanelFeed
	m.selectedRow = 1

	// The next refresh returns a shorter feed.
	provider.data.Feed = provider.data.Feed[:1]
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0 after feed shrank", m.selectedRow)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"this is far too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.maxLen); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.maxLen, got, c.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, c := range cases {
		if got := formatBytes(c.in); got != c.want {
			t.Errorf("formatBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
