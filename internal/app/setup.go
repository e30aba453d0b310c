package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/polymarket-updown/internal/credentials"
	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/internal/history"
	"github.com/mselser95/polymarket-updown/internal/locks"
	"github.com/mselser95/polymarket-updown/internal/markets"
	"github.com/mselser95/polymarket-updown/internal/positions"
	"github.com/mselser95/polymarket-updown/internal/pricefeed"
	"github.com/mselser95/polymarket-updown/internal/quotes"
	"github.com/mselser95/polymarket-updown/internal/redeem"
	"github.com/mselser95/polymarket-updown/internal/stoploss"
	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/mselser95/polymarket-updown/internal/strategy"
	"github.com/mselser95/polymarket-updown/internal/watchdog"
	"github.com/mselser95/polymarket-updown/pkg/cache"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/mselser95/polymarket-updown/pkg/httpserver"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"github.com/mselser95/polymarket-updown/pkg/websocket"
)

// New builds the full application from config. Nothing dials out until
// Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	strategies, err := config.LoadStrategies(cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := a.setup(strategies); err != nil {
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(strategies []config.StrategyConfig) error {
	cfg, logger := a.cfg, a.logger

	state, err := statefile.New(cfg.StateDir, logger)
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}
	a.state = state

	store, err := storage.New(&storage.Config{
		Mode:         cfg.StorageMode,
		SQLitePath:   cfg.SQLitePath,
		PostgresHost: cfg.PostgresHost,
		PostgresPort: cfg.PostgresPort,
		PostgresUser: cfg.PostgresUser,
		PostgresPass: cfg.PostgresPass,
		PostgresDB:   cfg.PostgresDB,
		SSLMode:      cfg.PostgresSSL,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	a.store = store

	a.historyLog, err = history.New(&history.Config{
		Limit:  cfg.HistoryLimit,
		State:  state,
		Mirror: store,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("setup history: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.VenueRateLimit), cfg.VenueRateBurst)

	a.execClient, err = execution.NewClient(&execution.Config{
		BaseURL:       cfg.PolymarketCLOBURL,
		PrivateKey:    cfg.PrivateKey,
		FunderAddress: cfg.FunderAddress,
		Limiter:       limiter,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("setup execution client: %w", err)
	}

	a.credPool, err = credentials.New(&credentials.Config{
		Credentials:          seedCredentials(cfg),
		QuotaCooldownDefault: cfg.QuotaCooldownDefault,
		AuthCooldown:         cfg.AuthCooldown,
		Client:               a.execClient,
		State:                state,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("setup credential pool: %w", err)
	}

	a.priceFeed, err = pricefeed.New(&pricefeed.Config{
		BaseURL: cfg.PriceFeedURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("setup price feed: %w", err)
	}

	marketCache, err := cache.New(&cache.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("setup market cache: %w", err)
	}

	a.snapshot, err = markets.New(&markets.Config{
		Pairs:           strategyPairs(strategies),
		RefreshInterval: cfg.SnapshotRefreshInterval,
		BackoffBase:     cfg.SnapshotRefreshInterval / 4,
		BackoffMax:      cfg.SnapshotBackoffMax,
		Gamma:           markets.NewGammaClient(cfg.PolymarketGammaURL, logger),
		Prices:          a.priceFeed,
		MarketCache:     marketCache,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("setup market snapshot: %w", err)
	}

	a.quoteCache, err = quotes.New(&quotes.Config{
		PollInterval: cfg.QuotePollInterval,
		StaleCeiling: cfg.QuoteStaleCeiling,
		BackoffMax:   cfg.QuoteBackoffMax,
		Fetcher:      quotes.NewBooksClient(cfg.PolymarketCLOBURL, limiter, logger),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup quote cache: %w", err)
	}

	if cfg.QuoteUseWebsocket {
		a.wsManager, err = websocket.New(websocket.Config{
			URL:                   cfg.PolymarketWSURL,
			DialTimeout:           cfg.WSDialTimeout,
			PingInterval:          cfg.WSPingInterval,
			ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
			Sink:                  a.quoteCache,
			Logger:                logger,
		})
		if err != nil {
			return fmt.Errorf("setup websocket: %w", err)
		}
	}

	a.tracker, err = positions.New(&positions.Config{
		Retention:           cfg.PositionRetention,
		FailedRetryCooldown: cfg.FailedRetryCooldown,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("setup position tracker: %w", err)
	}

	a.lockTable, err = locks.New(&locks.Config{
		TTL:    cfg.LockTTL,
		Grace:  cfg.LockGrace,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("setup lock table: %w", err)
	}

	a.walletClient, err = wallet.NewClient(&wallet.Config{
		RPCURL:     cfg.PolygonRPCURL,
		DataAPIURL: cfg.PolymarketDataURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("setup wallet client: %w", err)
	}

	if err := a.setupRedeem(); err != nil {
		return err
	}

	a.watchdog, err = watchdog.New(&watchdog.Config{
		Interval:        cfg.WatchdogInterval,
		RunWindow:       cfg.WatchdogRunWindow,
		StaleThreshold:  cfg.WatchdogStaleThreshold,
		RedeemThreshold: cfg.WatchdogRedeemThreshold,
		OrderThreshold:  cfg.WatchdogOrderThreshold,
		RedeemTimeout:   cfg.WatchdogRedeemTimeout,
		Feeds: map[string]watchdog.Feed{
			"quotes":  a.quoteCache,
			"markets": a.snapshot,
		},
		Redeems: a.drainer,
		History: a.historyLog,
		Record:  a.historyLog,
		Reports: state,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("setup watchdog: %w", err)
	}

	metadata := markets.NewCachedMetadataClient(markets.NewMetadataClient(cfg.PolymarketCLOBURL), marketCache)

	if err := a.setupStrategies(strategies, metadata); err != nil {
		return err
	}

	a.walletTracker, err = wallet.NewTracker(&wallet.TrackerConfig{
		Client:          a.walletClient,
		Address:         common.HexToAddress(a.fundingWallet()),
		PollInterval:    cfg.RedeemInterval,
		WinnerThreshold: cfg.RedeemWinnerThreshold,
		DustSize:        cfg.RedeemDustSize,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("setup wallet tracker: %w", err)
	}

	strategySources := make([]httpserver.StrategySource, 0, len(a.engines))
	for _, engine := range a.engines {
		strategySources = append(strategySources, engine)
	}

	a.httpServer, err = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Positions:     a.tracker,
		History:       a.historyLog,
		Markets:       a.snapshot,
		Automation:    a.watchdog,
		Strategies:    strategySources,
	})
	if err != nil {
		return fmt.Errorf("setup http server: %w", err)
	}

	return nil
}

func (a *App) setupRedeem() error {
	cfg := a.cfg

	var (
		submitter redeem.Submitter
		err       error
	)
	switch types.RedeemMethod(cfg.RedeemMethod) {
	case types.RedeemRelayer:
		submitter, err = redeem.NewRelayer(&redeem.RelayerConfig{
			BaseURL: cfg.RelayerURL,
			Address: a.fundingWallet(),
			Logger:  a.logger,
		})
	default:
		submitter, err = redeem.NewOnChain(&redeem.OnChainConfig{
			RPCURL:        cfg.PolygonRPCURL,
			PrivateKey:    cfg.PrivateKey,
			FunderAddress: cfg.FunderAddress,
			Logger:        a.logger,
		})
	}
	if err != nil {
		return fmt.Errorf("setup redeem submitter: %w", err)
	}

	a.drainer, err = redeem.New(&redeem.Config{
		Method:          types.RedeemMethod(cfg.RedeemMethod),
		Interval:        cfg.RedeemInterval,
		MaxPerCycle:     cfg.RedeemMaxPerCycle,
		Delay:           cfg.RedeemDelay,
		ConfirmTimeout:  cfg.RedeemConfirmTimeout,
		WinnerThreshold: cfg.RedeemWinnerThreshold,
		DustSize:        cfg.RedeemDustSize,
		Wallet:          a.fundingWallet(),
		Positions:       a.walletClient,
		Submitter:       submitter,
		Credentials:     a.credPool,
		Tracker:         a.tracker,
		History:         a.historyLog,
		State:           a.state,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup redeem drainer: %w", err)
	}

	return nil
}

func (a *App) setupStrategies(strategies []config.StrategyConfig, metadata *markets.CachedMetadataClient) error {
	for _, sc := range strategies {
		if !sc.Enabled {
			a.logger.Info("strategy-disabled", zap.String("strategy", sc.Name))
			continue
		}

		adaptive, err := strategy.NewThresholds(
			sc.Name, sc.MinDelta, sc.BigMoveMultiplier, sc.RevertCount, a.state, a.logger)
		if err != nil {
			return fmt.Errorf("strategy %s: setup thresholds: %w", sc.Name, err)
		}

		engine, err := strategy.NewEngine(&strategy.EngineConfig{
			Strategy:    sc,
			QuoteMaxAge: a.cfg.QuoteStaleCeiling,
			Markets:     a.snapshot,
			Quotes:      a.quoteCache,
			Prices:      a.priceFeed,
			Exec:        a.execClient,
			Locks:       a.lockTable,
			Tracker:     a.tracker,
			History:     a.historyLog,
			Adaptive:    adaptive,
			Gate:        a.watchdog,
			Logger:      a.logger,
		})
		if err != nil {
			return fmt.Errorf("strategy %s: setup engine: %w", sc.Name, err)
		}
		a.engines = append(a.engines, engine)

		if sc.SplitEntry.Enabled {
			scheduler, err := strategy.NewScheduler(engine, a.logger)
			if err != nil {
				return fmt.Errorf("strategy %s: setup split scheduler: %w", sc.Name, err)
			}
			a.schedulers = append(a.schedulers, scheduler)
		}

		if sc.StopLoss.Enabled {
			stopEngine, err := stoploss.New(&stoploss.Config{
				Strategy: sc.Name,
				StopLoss: sc.StopLoss,
				Exec:     a.execClient,
				Quotes:   a.quoteCache,
				Tracker:  a.tracker,
				Locks:    a.lockTable,
				History:  a.historyLog,
				Metadata: metadata,
				Gate:     a.watchdog,
				Logger:   a.logger,
			})
			if err != nil {
				return fmt.Errorf("strategy %s: setup stop-loss: %w", sc.Name, err)
			}
			a.stopEngines = append(a.stopEngines, stopEngine)
		}
	}

	if len(a.engines) == 0 {
		return fmt.Errorf("no enabled strategies in %s", a.cfg.StrategyFile)
	}

	return nil
}

// fundingWallet is the address holding positions: the proxy wallet
// when configured, the signing EOA otherwise.
func (a *App) fundingWallet() string {
	if a.cfg.FunderAddress != "" {
		return a.cfg.FunderAddress
	}

	return a.execClient.Address()
}

// seedCredentials builds the initial pool from env config. The pool
// ignores it once persisted state exists.
func seedCredentials(cfg *config.Config) []types.Credential {
	if cfg.PolymarketAPIKey == "" {
		return nil
	}

	return []types.Credential{{
		ID:         "env",
		APIKey:     cfg.PolymarketAPIKey,
		Secret:     cfg.PolymarketSecret,
		Passphrase: cfg.PolymarketPassphrase,
	}}
}

// strategyPairs collects the distinct symbol/timeframe pairs across
// enabled strategies.
func strategyPairs(strategies []config.StrategyConfig) []markets.Pair {
	seen := make(map[markets.Pair]bool)

	var pairs []markets.Pair
	for _, sc := range strategies {
		if !sc.Enabled {
			continue
		}
		for _, symbol := range sc.Symbols {
			p := markets.Pair{Symbol: symbol, Timeframe: sc.Timeframe}
			if !seen[p] {
				seen[p] = true
				pairs = append(pairs, p)
			}
		}
	}

	return pairs
}
