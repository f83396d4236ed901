// dashboard.go implements the TUI dashboard command.
package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaylens/relaylens/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long: `Opens an interactive dashboard showing connection health, the
live event feed, and delivery analytics, polled from the running daemon.

Panels:
  - Connection: state, retry attempts, queued frames, topics
  - Events: recent events with topic and payload
  - Analytics: totals, message rate, top topics, reconnect count

Keyboard shortcuts:
  q          quit dashboard
  r          manual refresh
  d          toggle event detail view
  tab        switch between panels
  up/down    scroll the event feed`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	baseURL := "http://" + viper.GetString("server.listen")

	provider := tui.NewAPIProvider(baseURL)
	model := tui.NewModel(provider)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}

	return nil
}
