package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/httpserver"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running engine's status",
	Long: `Queries a running engine's HTTP API and prints whether automation
is enabled, how many markets and positions it tracks, and the last
watchdog stop if any.`,
	RunE: runStatus,
}

//nolint:gochecknoglobals // Cobra flags
var apiAddr string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "Base URL of the running engine")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status httpserver.StatusResponse
	if err := fetchAPI(apiAddr+"/api/status", &status); err != nil {
		return err
	}

	enabled := "RUNNING"
	if !status.AutomationEnabled {
		enabled = "STOPPED"
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Automation", "Uptime", "Active Markets", "Open Positions")
	if err := table.Append(enabled, status.Uptime,
		fmt.Sprintf("%d", status.ActiveMarkets),
		fmt.Sprintf("%d", status.OpenPositions)); err != nil {
		return fmt.Errorf("render status: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	for _, s := range status.Strategies {
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		fmt.Printf("\nStrategy %s (%s, %s):\n", s.Name, s.Timeframe, state)
		for _, symbol := range s.Symbols {
			d, ok := s.Decisions[symbol]
			if !ok {
				fmt.Printf("  %-6s no decisions yet\n", symbol)
				continue
			}
			line := d.Action
			if d.Reason != "" {
				line += " (" + d.Reason + ")"
			}
			fmt.Printf("  %-6s %s at %s\n", symbol, line, d.At.Format(time.RFC3339))
		}
	}

	if status.LastStop != nil {
		fmt.Printf("\nLast stop: %s (%s) at %s\n",
			status.LastStop.Reason,
			status.LastStop.Detail,
			status.LastStop.StoppedAt.Format(time.RFC3339))
	}

	return nil
}

// fetchAPI GETs one engine API endpoint and decodes the JSON body.
func fetchAPI(url string, v any) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the engine running? %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
