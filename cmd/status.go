// status.go implements the status command: a one-shot query against the
// running daemon's local API.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection status of the running daemon",
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON response")
}

type daemonStatus struct {
	State             string   `json:"state"`
	Detail            string   `json:"detail"`
	FailureKind       string   `json:"failure_kind"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	Queued            int      `json:"queued"`
	Topics            []string `json:"topics"`
	UIClients         int      `json:"ui_clients"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	listen := viper.GetString("server.listen")
	baseURL := "http://" + listen

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(3 * time.Second)

	var status daemonStatus
	resp, err := client.R().SetResult(&status).Get("/api/status")
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is 'relaylens up' running?): %w", baseURL, err)
	}
	if resp.IsError() {
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode())
	}

	if statusJSON {
		fmt.Println(string(resp.Body()))
		return nil
	}

	fmt.Printf("State:     %s\n", status.State)
	if status.Detail != "" {
		fmt.Printf("Detail:    %s\n", status.Detail)
	}
	if status.FailureKind != "" {
		fmt.Printf("Failure:   %s\n", status.FailureKind)
	}
	fmt.Printf("Attempts:  %d\n", status.ReconnectAttempts)
	fmt.Printf("Queued:    %d\n", status.Queued)
	if len(status.Topics) > 0 {
		fmt.Printf("Topics:    %s\n", strings.Join(status.Topics, ", "))
	}
	fmt.Printf("UI links:  %d\n", status.UIClients)

	return nil
}
