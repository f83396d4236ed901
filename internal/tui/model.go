// Package tui renders the terminal dashboard: connection health, the live
// event feed, and delivery analytics, fed by the daemon's local API.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Panel identifies the focused dashboard panel.
type Panel int

const (
	// PanelConnection is the connection health panel (top).
	PanelConnection Panel = iota
	// PanelFeed is the live event feed panel (middle).
	PanelFeed
	// PanelAnalytics is the delivery analytics panel (bottom).
	PanelAnalytics

	panelCount = 3
)

// FeedEntry is one row of the event feed.
type FeedEntry struct {
	Topic      string
	Payload    string
	Retained   bool
	ReceivedAt time.Time
}

// TopicRow is one row of the per-topic breakdown.
type TopicRow struct {
	Topic string
	Count int64
}

// DashboardData is one refresh of everything the dashboard shows.
type DashboardData struct {
	// Connection panel.
	State       string
	Detail      string
	Attempts    int
	Queued      int
	Topics      []string
	UIClients   int
	FetchError  string

	// Feed panel.
	Feed []FeedEntry

	// Analytics panel.
	TotalEvents    int64
	TotalBytes     int64
	EventsPerSec   float64
	UniqueTopics   int
	TopTopics      []TopicRow
	ReconnectCount int64
	StartedAt      time.Time
}

// DataProvider fetches a dashboard snapshot; the refresh ticker calls it on
// every tick.
type DataProvider interface {
	FetchData() DashboardData
}

// tickMsg signals a periodic data refresh.
type tickMsg time.Time

// refreshInterval is the dashboard polling interval.
const refreshInterval = 2 * time.Second

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	data     DashboardData
	provider DataProvider

	activePanel  Panel
	selectedRow  int
	scrollOffset int
	showDetail   bool

	width    int
	height   int
	quitting bool
}

// NewModel creates a dashboard model backed by provider.
func NewModel(provider DataProvider) Model {
	return Model{
		data:        provider.FetchData(),
		provider:    provider,
		activePanel: PanelConnection,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.data = m.provider.FetchData()
		m.clampSelection()
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r":
		m.data = m.provider.FetchData()
		m.clampSelection()
		return m, nil

	case "d":
		m.showDetail = !m.showDetail
		return m, nil

	case "tab":
		m.activePanel = (m.activePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
		return m, nil

	case "up", "k":
		if m.activePanel == PanelFeed && len(m.data.Feed) > 0 {
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.selectedRow < m.scrollOffset {
				m.scrollOffset = m.selectedRow
			}
		}
		return m, nil

	case "down", "j":
		if m.activePanel == PanelFeed && len(m.data.Feed) > 0 {
			if m.selectedRow < len(m.data.Feed)-1 {
				m.selectedRow++
			}
			if m.selectedRow >= m.scrollOffset+feedVisibleRows {
				m.scrollOffset = m.selectedRow - feedVisibleRows + 1
			}
		}
		return m, nil
	}

	return m, nil
}

// clampSelection keeps the feed cursor valid after a refresh shrinks the
// feed.
func (m *Model) clampSelection() {
	if m.selectedRow >= len(m.data.Feed) {
		m.selectedRow = len(m.data.Feed) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
	if m.scrollOffset > m.selectedRow {
		m.scrollOffset = m.selectedRow
	}
}

// feedVisibleRows is the number of feed rows shown at once.
const feedVisibleRows = 8

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "relaylens dashboard closed.\n"
	}

	w := m.width
	if w == 0 {
		w = 80
	}
	contentWidth := w - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(contentWidth),
		m.renderConnectionPanel(contentWidth),
		m.renderFeedPanel(contentWidth),
		m.renderAnalyticsPanel(contentWidth),
		m.renderFooter(contentWidth),
	)
}

func (m Model) renderHeader(width int) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#1E3A8A")).
		Padding(0, 1).
		Width(width).
		Render("relaylens dashboard")
}

func (m Model) renderFooter(width int) string {
	keys := []struct {
		key  string
		desc string
	}{
		{"q", "quit"},
		{"r", "refresh"},
		{"d", "toggle detail"},
		{"tab", "switch panel"},
		{"up/down", "scroll feed"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts,
			helpKeyStyle.Render(k.key)+" "+helpStyle.Render(k.desc),
		)
	}

	help := strings.Join(parts, helpStyle.Render("  |  "))
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(help)
}

func (m Model) renderConnectionPanel(width int) string {
	lines := []string{
		labelStyle.Render("State:") + " " + m.formatState(),
		labelStyle.Render("Detail:") + " " + valueStyle.Render(orDash(m.data.Detail)),
		labelStyle.Render("Attempts:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.data.Attempts)),
		labelStyle.Render("Queued:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.data.Queued)),
		labelStyle.Render("Topics:") + " " + valueStyle.Render(orDash(strings.Join(m.data.Topics, ", "))),
		labelStyle.Render("UI clients:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.data.UIClients)),
	}
	if m.data.FetchError != "" {
		lines = append(lines, stateFailed.Render("daemon unreachable: "+m.data.FetchError))
	}
	content := strings.Join(lines, "\n")

	style := m.panelStyleFor(PanelConnection, width)
	return titleStyle.Render(" Connection ") + "\n" + style.Render(content)
}

func (m Model) renderFeedPanel(width int) string {
	colTime := 10
	colTopic := 28
	colPayload := width - colTime - colTopic - 10
	if colPayload < 16 {
		colPayload = 16
	}

	header := headerStyle.Render(
		fmt.Sprintf("%-*s %-*s %-*s",
			colTime, "Time",
			colTopic, "Topic",
			colPayload, "Payload",
		),
	)

	rows := []string{header}

	if len(m.data.Feed) == 0 {
		rows = append(rows, normalRowStyle.Render("  No events yet"))
	} else {
		end := m.scrollOffset + feedVisibleRows
		if end > len(m.data.Feed) {
			end = len(m.data.Feed)
		}

		for i := m.scrollOffset; i < end; i++ {
			entry := m.data.Feed[i]
			row := fmt.Sprintf("%-*s %-*s %-*s",
				colTime, entry.ReceivedAt.Format("15:04:05"),
				colTopic, truncate(entry.Topic, colTopic),
				colPayload, truncate(entry.Payload, colPayload),
			)

			if i == m.selectedRow && m.activePanel == PanelFeed {
				rows = append(rows, selectedRowStyle.Render(row))
			} else {
				rows = append(rows, normalRowStyle.Render(row))
			}
		}

		if len(m.data.Feed) > feedVisibleRows {
			indicator := fmt.Sprintf("  [%d/%d events]", m.selectedRow+1, len(m.data.Feed))
			rows = append(rows, helpStyle.Render(indicator))
		}
	}

	if m.showDetail && len(m.data.Feed) > 0 && m.selectedRow < len(m.data.Feed) {
		entry := m.data.Feed[m.selectedRow]
		retained := ""
		if entry.Retained {
			retained = "  (retained)"
		}
		detail := fmt.Sprintf(
			"\n  %s  %s%s\n  %s",
			entry.ReceivedAt.Format("2006-01-02 15:04:05"),
			entry.Topic, retained,
			entry.Payload,
		)
		rows = append(rows, helpStyle.Render(detail))
	}

	content := strings.Join(rows, "\n")
	style := m.panelStyleFor(PanelFeed, width)
	return titleStyle.Render(" Events ") + "\n" + style.Render(content)
}

func (m Model) renderAnalyticsPanel(width int) string {
	var uptime string
	if !m.data.StartedAt.IsZero() {
		uptime = formatDuration(time.Since(m.data.StartedAt))
	} else {
		uptime = "--"
	}

	var top []string
	for i, row := range m.data.TopTopics {
		if i >= 3 {
			break
		}
		top = append(top, fmt.Sprintf("%s (%d)", row.Topic, row.Count))
	}

	lines := []string{
		labelStyle.Render("Events:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.data.TotalEvents)),
		labelStyle.Render("Rate:") + " " + valueStyle.Render(fmt.Sprintf("%.2f/s", m.data.EventsPerSec)),
		labelStyle.Render("Volume:") + " " + valueStyle.Render(formatBytes(m.data.TotalBytes)),
		labelStyle.Render("Topics:") + " " + valueStyle.Render(fmt.Sprintf("%d unique", m.data.UniqueTopics)),
		labelStyle.Render("Top topics:") + " " + valueStyle.Render(orDash(strings.Join(top, ", "))),
		labelStyle.Render("Reconnects:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.data.ReconnectCount)),
		labelStyle.Render("Uptime:") + " " + valueStyle.Render(uptime),
	}
	content := strings.Join(lines, "\n")

	style := m.panelStyleFor(PanelAnalytics, width)
	return titleStyle.Render(" Analytics ") + "\n" + style.Render(content)
}

func (m Model) panelStyleFor(panel Panel, width int) lipgloss.Style {
	if m.activePanel == panel {
		return activePanelStyle.Width(width - 2)
	}
	return panelStyle.Width(width - 2)
}

func (m Model) formatState() string {
	switch m.data.State {
	case "connected":
		return stateConnected.Render("Connected")
	case "connecting":
		return stateConnecting.Render("Connecting...")
	case "reconnecting":
		detail := "Reconnecting..."
		if m.data.Attempts > 0 {
			detail = fmt.Sprintf("Reconnecting (attempt %d)...", m.data.Attempts)
		}
		return stateConnecting.Render(detail)
	case "disconnecting":
		return stateConnecting.Render("Disconnecting...")
	case "failed":
		return stateFailed.Render("Failed")
	case "disconnected", "":
		return stateDisconnected.Render("Disconnected")
	default:
		return stateDisconnected.Render(m.data.State)
	}
}

func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	days := totalSeconds / 86400
	hours := (totalSeconds % 86400) / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

// truncate shortens a string to maxLen, adding an ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
