package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/internal/markets"
	"github.com/mselser95/polymarket-updown/internal/quotes"
	"github.com/mselser95/polymarket-updown/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Show top-of-book quotes for the active markets",
	Long: `Resolves the active Up/Down market per symbol, fetches its order
books from the CLOB and prints the best bid and ask per side.`,
	RunE: runQuotes,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(quotesCmd)

	quotesCmd.Flags().StringSliceVar(&marketSymbols, "symbols", []string{"BTC", "ETH"}, "Symbols to quote")
	quotesCmd.Flags().StringVar(&marketTimeframe, "timeframe", "1h", "Window timeframe (1h, 6h, 1d)")
}

func runQuotes(cmd *cobra.Command, args []string) error {
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
	books := quotes.NewBooksClient(cfg.PolymarketCLOBURL, nil, logger)

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Symbol", "Side", "Instrument", "Best Bid", "Bid Size", "Best Ask", "Ask Size")

	now := time.Now()
	for _, symbol := range marketSymbols {
		current, _, err := markets.WindowSlugs(symbol, marketTimeframe, now)
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}

		row, err := gamma.FetchMarketBySlug(cmd.Context(), current)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s (%s): %v\n", symbol, current, err)
			continue
		}
		market, err := row.ToMarket(symbol, marketTimeframe, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s (%s): %v\n", symbol, current, err)
			continue
		}

		responses, err := books.FetchBooks(cmd.Context(), []string{market.UpTokenID, market.DownTokenID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: fetch books: %v\n", symbol, err)
			continue
		}

		for _, book := range responses {
			side := "Up"
			if book.AssetID == market.DownTokenID {
				side = "Down"
			}

			quote := book.ToQuote(now)
			if err := table.Append(
				symbol,
				side,
				shortID(book.AssetID),
				fmt.Sprintf("%.3f", quote.BestBid),
				fmt.Sprintf("%.2f", quote.BestBidSize),
				fmt.Sprintf("%.3f", quote.BestAsk),
				fmt.Sprintf("%.2f", quote.BestAskSize),
			); err != nil {
				return fmt.Errorf("render quotes: %w", err)
			}
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render quotes: %w", err)
	}

	return nil
}
