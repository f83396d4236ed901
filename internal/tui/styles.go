// styles.go defines the lipgloss styles for the dashboard panels and the
// connection state indicators.
package tui

import "github.com/charmbracelet/lipgloss"

// Panel border and title styles.
var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#52525B")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#3B82F6")).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#1E3A8A")).
			Padding(0, 1)
)

// Connection state colors.
var (
	stateConnected = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	stateDisconnected = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#71717A")).
				Bold(true)

	stateConnecting = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	stateFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E11D48")).
			Bold(true)
)

// Table formatting styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#1D4ED8"))

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#1E3A8A")).
				Foreground(lipgloss.Color("#FFFFFF"))

	normalRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A1A1AA"))
)

// Label and value styles for key-value pairs.
var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A1A1AA")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))
)

// Footer help styles.
var (
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717A"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)
)
