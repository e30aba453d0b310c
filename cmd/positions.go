package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List the wallet's venue positions",
	Long: `Fetches the funding wallet's positions from the venue Data API and
prints size, entry price, current price and whether each position is
redeemable.

Examples:
  # All positions
  polymarket-updown positions

  # Only redeemable winners
  polymarket-updown positions --redeemable-only

  # JSON output
  polymarket-updown positions --format json`,
	RunE: runPositionsList,
}

//nolint:gochecknoglobals // Cobra flags
var (
	redeemableOnly    bool
	positionsFormat   string
	positionsMinValue float64
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)

	positionsCmd.Flags().BoolVar(&redeemableOnly, "redeemable-only", false, "Show only redeemable positions")
	positionsCmd.Flags().StringVar(&positionsFormat, "format", "table", "Output format: table, json")
	positionsCmd.Flags().Float64Var(&positionsMinValue, "min-value", 0, "Hide positions below this USD value")
}

func runPositionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := wallet.NewClient(&wallet.Config{
		RPCURL:     cfg.PolygonRPCURL,
		DataAPIURL: cfg.PolymarketDataURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	address, err := fundingWallet(cfg)
	if err != nil {
		return err
	}

	positions, err := client.RedeemablePositions(cmd.Context(), address)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	filtered := make([]types.DataAPIPosition, 0, len(positions))
	for _, p := range positions {
		if redeemableOnly && !p.Redeemable {
			continue
		}
		if p.Size*p.CurPrice < positionsMinValue {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Size*filtered[i].CurPrice > filtered[j].Size*filtered[j].CurPrice
	})

	if positionsFormat == "json" {
		return printJSON(filtered)
	}

	if len(filtered) == 0 {
		fmt.Println("No positions.")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Market", "Outcome", "Size", "Avg Price", "Cur Price", "Value", "Redeemable")
	for _, p := range filtered {
		if err := table.Append(
			truncate(p.Title, 48),
			p.Outcome,
			fmt.Sprintf("%.2f", p.Size),
			fmt.Sprintf("%.3f", p.AvgPrice),
			fmt.Sprintf("%.3f", p.CurPrice),
			fmt.Sprintf("$%.2f", p.Size*p.CurPrice),
			fmt.Sprintf("%t", p.Redeemable),
		); err != nil {
			return fmt.Errorf("render positions: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render positions: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return strings.TrimSpace(s[:n-1]) + "…"
}
