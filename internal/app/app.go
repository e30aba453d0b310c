// Package app assembles and runs the trading engine: market snapshot,
// quote feeds, strategy runners, stop-loss, redeem drain and watchdog.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

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
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/mselser95/polymarket-updown/pkg/httpserver"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"github.com/mselser95/polymarket-updown/pkg/websocket"
)

// App owns every long-running component and their shutdown order.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker

	state      *statefile.Store
	store      storage.Storage
	historyLog *history.Log

	execClient *execution.Client
	credPool   *credentials.Pool

	snapshot   *markets.Snapshot
	quoteCache *quotes.Cache
	wsManager  *websocket.Manager // nil when the websocket feed is disabled
	priceFeed  *pricefeed.Client

	tracker   *positions.Tracker
	lockTable *locks.Manager

	engines     []*strategy.Engine
	schedulers  []*strategy.Scheduler
	stopEngines []*stoploss.Engine

	drainer  *redeem.Drainer
	watchdog *watchdog.Watchdog

	walletClient  *wallet.Client
	walletTracker *wallet.Tracker
	httpServer    *httpserver.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
