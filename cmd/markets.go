package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/internal/markets"
	"github.com/mselser95/polymarket-updown/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Resolve the active Up/Down markets",
	Long: `Resolves the current and next Up/Down market for each symbol from
the Gamma API and prints their slugs, token ids and expiry.

Examples:
  polymarket-updown markets
  polymarket-updown markets --symbols BTC --timeframe 1h`,
	RunE: runMarkets,
}

//nolint:gochecknoglobals // Cobra flags
var (
	marketSymbols   []string
	marketTimeframe string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)

	marketsCmd.Flags().StringSliceVar(&marketSymbols, "symbols", []string{"BTC", "ETH"}, "Symbols to resolve")
	marketsCmd.Flags().StringVar(&marketTimeframe, "timeframe", "1h", "Window timeframe (1h, 6h, 1d)")
}

func runMarkets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gamma := markets.NewGammaClient(cfg.PolymarketGammaURL, logger)

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Symbol", "Window", "Slug", "Condition ID", "Up Token", "Down Token", "Expiry")

	for _, symbol := range marketSymbols {
		current, next, err := markets.WindowSlugs(symbol, marketTimeframe, time.Now())
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}

		windows := []struct{ name, slug string }{{"current", current}, {"next", next}}
		for _, w := range windows {
			window, slug := w.name, w.slug
			row, err := gamma.FetchMarketBySlug(cmd.Context(), slug)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s (%s): %v\n", symbol, window, slug, err)
				continue
			}

			market, err := row.ToMarket(symbol, marketTimeframe, 0)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s (%s): %v\n", symbol, window, slug, err)
				continue
			}

			if err := table.Append(
				symbol,
				window,
				market.Slug,
				shortID(market.ConditionID),
				shortID(market.UpTokenID),
				shortID(market.DownTokenID),
				market.Expiry.Format(time.RFC3339),
			); err != nil {
				return fmt.Errorf("render markets: %w", err)
			}
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render markets: %w", err)
	}

	return nil
}

// shortID keeps ids readable in tables.
func shortID(id string) string {
	if len(id) <= 14 {
		return id
	}

	return id[:8] + "…" + id[len(id)-4:]
}
