package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/internal/history"
	"github.com/mselser95/polymarket-updown/internal/locks"
	"github.com/mselser95/polymarket-updown/internal/markets"
	"github.com/mselser95/polymarket-updown/internal/positions"
	"github.com/mselser95/polymarket-updown/internal/pricefeed"
	"github.com/mselser95/polymarket-updown/internal/quotes"
	"github.com/mselser95/polymarket-updown/internal/strategy"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	forceStrategy string
	forceSymbol   string

	forceEntryCmd = &cobra.Command{
		Use:   "force-entry",
		Short: "Place a manual entry for one symbol",
		Long: `Places an entry through the strategy engine with the delta,
trend and guard gates bypassed. The order lock, duplicate-entry and
minimum-probability checks still apply. For recovering a missed hour,
not for routine trading.`,
		RunE: runForceEntry,
	}
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	forceEntryCmd.Flags().StringVar(&forceStrategy, "strategy", "", "strategy name (default: first enabled)")
	forceEntryCmd.Flags().StringVar(&forceSymbol, "symbol", "", "symbol to enter (e.g. BTC)")
	_ = forceEntryCmd.MarkFlagRequired("symbol")
	rootCmd.AddCommand(forceEntryCmd)
}

func runForceEntry(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	sc, err := pickStrategy(cfg.StrategyFile, forceStrategy)
	if err != nil {
		return err
	}

	engine, refresh, err := buildEntryEngine(cfg, sc, logger)
	if err != nil {
		return err
	}
	if err := refresh(cmd.Context()); err != nil {
		return fmt.Errorf("load market data: %w", err)
	}

	fmt.Printf("Forcing entry: strategy %s, symbol %s\n", sc.Name, forceSymbol)

	pos, err := engine.ForceEntry(cmd.Context(), forceSymbol)
	if err != nil {
		return fmt.Errorf("force entry: %w", err)
	}

	fmt.Printf("Entered %s %s: order %s, price %.3f, size %.2f\n",
		pos.Symbol, pos.Side, pos.OrderID, pos.EntryPrice, pos.TotalSize)

	return nil
}

func pickStrategy(path, name string) (config.StrategyConfig, error) {
	strategies, err := config.LoadStrategies(path)
	if err != nil {
		return config.StrategyConfig{}, fmt.Errorf("load strategies: %w", err)
	}

	for _, sc := range strategies {
		if name == "" && sc.Enabled {
			return sc, nil
		}
		if sc.Name == name {
			return sc, nil
		}
	}

	if name == "" {
		return config.StrategyConfig{}, fmt.Errorf("no enabled strategy in %s", path)
	}

	return config.StrategyConfig{}, fmt.Errorf("strategy %q not found in %s", name, path)
}

// buildEntryEngine assembles a one-shot strategy engine over fresh
// market and quote data. The returned refresh fills both before the
// entry evaluates.
func buildEntryEngine(cfg *config.Config, sc config.StrategyConfig, logger *zap.Logger) (*strategy.Engine, func(context.Context) error, error) {
	state, err := statefile.New(cfg.StateDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open state directory: %w", err)
	}

	execClient, err := execution.NewClient(&execution.Config{
		BaseURL:       cfg.PolymarketCLOBURL,
		PrivateKey:    cfg.PrivateKey,
		FunderAddress: cfg.FunderAddress,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup execution client: %w", err)
	}

	cred := types.Credential{
		ID:         "env",
		APIKey:     cfg.PolymarketAPIKey,
		Secret:     cfg.PolymarketSecret,
		Passphrase: cfg.PolymarketPassphrase,
	}
	if cred.APIKey == "" {
		deriveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		derived, err := execution.DeriveAPICreds(deriveCtx, cfg.PolymarketCLOBURL, cfg.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("derive api credentials: %w", err)
		}
		cred = *derived
	}
	execClient.SetCredential(cred)

	priceFeed, err := pricefeed.New(&pricefeed.Config{
		BaseURL: cfg.PriceFeedURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup price feed: %w", err)
	}

	var pairs []markets.Pair
	for _, symbol := range sc.Symbols {
		pairs = append(pairs, markets.Pair{Symbol: symbol, Timeframe: sc.Timeframe})
	}

	snapshot, err := markets.New(&markets.Config{
		Pairs:           pairs,
		RefreshInterval: cfg.SnapshotRefreshInterval,
		BackoffBase:     cfg.SnapshotRefreshInterval / 4,
		BackoffMax:      cfg.SnapshotBackoffMax,
		Gamma:           markets.NewGammaClient(cfg.PolymarketGammaURL, logger),
		Prices:          priceFeed,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup market snapshot: %w", err)
	}

	quoteCache, err := quotes.New(&quotes.Config{
		PollInterval: cfg.QuotePollInterval,
		StaleCeiling: cfg.QuoteStaleCeiling,
		BackoffMax:   cfg.QuoteBackoffMax,
		Fetcher:      quotes.NewBooksClient(cfg.PolymarketCLOBURL, nil, logger),
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup quote cache: %w", err)
	}

	lockTable, err := locks.New(&locks.Config{
		TTL:    cfg.LockTTL,
		Grace:  cfg.LockGrace,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup lock table: %w", err)
	}

	tracker, err := positions.New(&positions.Config{
		Retention:           cfg.PositionRetention,
		FailedRetryCooldown: cfg.FailedRetryCooldown,
		Logger:              logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup position tracker: %w", err)
	}

	historyLog, err := history.New(&history.Config{
		Limit:  cfg.HistoryLimit,
		State:  state,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup history: %w", err)
	}

	adaptive, err := strategy.NewThresholds(
		sc.Name, sc.MinDelta, sc.BigMoveMultiplier, sc.RevertCount, state, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("setup thresholds: %w", err)
	}

	engine, err := strategy.NewEngine(&strategy.EngineConfig{
		Strategy:    sc,
		QuoteMaxAge: cfg.QuoteStaleCeiling,
		Markets:     snapshot,
		Quotes:      quoteCache,
		Prices:      priceFeed,
		Exec:        execClient,
		Locks:       lockTable,
		Tracker:     tracker,
		History:     historyLog,
		Adaptive:    adaptive,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup strategy engine: %w", err)
	}

	refresh := func(ctx context.Context) error {
		if err := snapshot.Refresh(ctx); err != nil {
			return err
		}

		var ids []string
		for _, m := range snapshot.ListActiveMarkets(ctx, nil, nil) {
			ids = append(ids, m.UpTokenID, m.DownTokenID)
		}
		quoteCache.SetInstruments(ids)

		return quoteCache.Refresh(ctx)
	}

	return engine, refresh, nil
}
