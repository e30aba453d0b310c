package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the running engine's recent actions",
	Long: `Queries a running engine for its action history: entries, stop-loss
sells, redeems and watchdog stops, newest first.`,
	RunE: runHistory,
}

//nolint:gochecknoglobals // Cobra flags
var (
	historyLimit  int
	historyFormat string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 25, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json")
	historyCmd.Flags().StringVar(&apiAddr, "addr", "http://localhost:8080", "Base URL of the running engine")
}

func runHistory(cmd *cobra.Command, args []string) error {
	var entries []types.HistoryEntry
	if err := fetchAPI(fmt.Sprintf("%s/api/history?limit=%d", apiAddr, historyLimit), &entries); err != nil {
		return err
	}

	if historyFormat == "json" {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No history.")
		return nil
	}

	// Join against the live tracker so each entry shows where its
	// position ended up. Best effort: the table renders without phases
	// when the endpoint is unavailable.
	phases := make(map[string]types.Phase)
	var tracked []types.Position
	if err := fetchAPI(apiAddr+"/api/positions", &tracked); err == nil {
		for _, p := range tracked {
			phases[p.Key] = p.Phase
		}
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Time", "Strategy", "Symbol", "Action", "Outcome", "Price", "Size", "Phase", "Detail")
	for _, e := range entries {
		phase := ""
		if p, ok := phases[e.PositionKey]; ok {
			phase = string(p)
		}
		if err := table.Append(
			e.At.Format("01-02 15:04:05"),
			e.Strategy,
			e.Symbol,
			string(e.Action),
			e.Outcome,
			fmt.Sprintf("%.3f", e.Price),
			fmt.Sprintf("%.2f", e.Size),
			phase,
			truncate(e.Detail, 40),
		); err != nil {
			return fmt.Errorf("render history: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render history: %w", err)
	}

	return nil
}
