package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel     string
	HTTPPort     string
	StateDir     string
	StrategyFile string

	// Polymarket API
	PolymarketCLOBURL    string
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketDataURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string

	// Signing / wallet
	PrivateKey    string
	FunderAddress string // proxy wallet; empty means trade from the EOA
	PolygonRPCURL string

	// Venue rate limiting (shared by CLOB/Gamma/Data clients)
	VenueRateLimit float64
	VenueRateBurst int

	// Market snapshot
	SnapshotRefreshInterval time.Duration
	SnapshotBackoffMax      time.Duration

	// Quote cache
	QuotePollInterval time.Duration
	QuoteStaleCeiling time.Duration
	QuoteBackoffMax   time.Duration
	QuoteUseWebsocket bool

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Price reference feed
	PriceFeedURL          string
	PriceFeedPollInterval time.Duration

	// Order locks
	LockTTL   time.Duration
	LockGrace time.Duration

	// Position tracker
	PositionRetention    time.Duration
	FailedRetryCooldown  time.Duration
	PositionSweepEnabled bool

	// Redeem drain
	RedeemMethod          string // "onchain" or "relayer"
	RedeemInterval        time.Duration
	RedeemMaxPerCycle     int
	RedeemDelay           time.Duration
	RedeemConfirmTimeout  time.Duration
	RedeemWinnerThreshold float64
	RedeemDustSize        float64
	RelayerURL            string

	// Credential rotation
	QuotaCooldownDefault time.Duration
	AuthCooldown         time.Duration

	// Watchdog
	WatchdogInterval        time.Duration
	WatchdogRunWindow       time.Duration
	WatchdogStaleThreshold  int
	WatchdogRedeemThreshold int
	WatchdogOrderThreshold  int
	WatchdogRedeemTimeout   time.Duration

	// History
	HistoryLimit int

	// Storage
	StorageMode  string // "sqlite", "postgres" or "console"
	SQLitePath   string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:     getEnvOrDefault("HTTP_PORT", "8080"),
		StateDir:     getEnvOrDefault("STATE_DIR", "./state"),
		StrategyFile: getEnvOrDefault("STRATEGY_FILE", "./strategies.yaml"),

		// Polymarket API defaults
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketDataURL:    getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),

		// Signing / wallet
		PrivateKey:    os.Getenv("PRIVATE_KEY"),
		FunderAddress: os.Getenv("FUNDER_ADDRESS"),
		PolygonRPCURL: getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		// Venue rate limiting
		VenueRateLimit: getFloat64OrDefault("VENUE_RATE_LIMIT", 8.0),
		VenueRateBurst: getIntOrDefault("VENUE_RATE_BURST", 16),

		// Market snapshot defaults
		SnapshotRefreshInterval: getDurationOrDefault("SNAPSHOT_REFRESH_INTERVAL", 30*time.Second),
		SnapshotBackoffMax:      getDurationOrDefault("SNAPSHOT_BACKOFF_MAX", 5*time.Minute),

		// Quote cache defaults
		QuotePollInterval: getDurationOrDefault("QUOTE_POLL_INTERVAL", 2*time.Second),
		QuoteStaleCeiling: getDurationOrDefault("QUOTE_STALE_CEILING", 10*time.Second),
		QuoteBackoffMax:   getDurationOrDefault("QUOTE_BACKOFF_MAX", time.Minute),
		QuoteUseWebsocket: getBoolOrDefault("QUOTE_USE_WEBSOCKET", true),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Price reference defaults
		PriceFeedURL:          getEnvOrDefault("PRICE_FEED_URL", "https://api.binance.com"),
		PriceFeedPollInterval: getDurationOrDefault("PRICE_FEED_POLL_INTERVAL", time.Second),

		// Lock defaults
		LockTTL:   getDurationOrDefault("LOCK_TTL", 30*time.Second),
		LockGrace: getDurationOrDefault("LOCK_GRACE", 5*time.Second),

		// Position tracker defaults
		PositionRetention:    getDurationOrDefault("POSITION_RETENTION", 48*time.Hour),
		FailedRetryCooldown:  getDurationOrDefault("FAILED_RETRY_COOLDOWN", 10*time.Minute),
		PositionSweepEnabled: getBoolOrDefault("POSITION_SWEEP_ENABLED", true),

		// Redeem drain defaults
		RedeemMethod:          getEnvOrDefault("REDEEM_METHOD", "onchain"),
		RedeemInterval:        getDurationOrDefault("REDEEM_INTERVAL", time.Minute),
		RedeemMaxPerCycle:     getIntOrDefault("REDEEM_MAX_PER_CYCLE", 10),
		RedeemDelay:           getDurationOrDefault("REDEEM_DELAY", 5*time.Second),
		RedeemConfirmTimeout:  getDurationOrDefault("REDEEM_CONFIRM_TIMEOUT", 5*time.Minute),
		RedeemWinnerThreshold: getFloat64OrDefault("REDEEM_WINNER_THRESHOLD", 0.999),
		RedeemDustSize:        getFloat64OrDefault("REDEEM_DUST_SIZE", 0.001),
		RelayerURL:            getEnvOrDefault("RELAYER_URL", ""),

		// Credential rotation defaults
		QuotaCooldownDefault: getDurationOrDefault("QUOTA_COOLDOWN_DEFAULT", 24*time.Hour),
		AuthCooldown:         getDurationOrDefault("AUTH_COOLDOWN", 48*time.Hour),

		// Watchdog defaults
		WatchdogInterval:        getDurationOrDefault("WATCHDOG_INTERVAL", 5*time.Second),
		WatchdogRunWindow:       getDurationOrDefault("WATCHDOG_RUN_WINDOW", 12*time.Hour),
		WatchdogStaleThreshold:  getIntOrDefault("WATCHDOG_STALE_THRESHOLD", 5),
		WatchdogRedeemThreshold: getIntOrDefault("WATCHDOG_REDEEM_THRESHOLD", 3),
		WatchdogOrderThreshold:  getIntOrDefault("WATCHDOG_ORDER_THRESHOLD", 3),
		WatchdogRedeemTimeout:   getDurationOrDefault("WATCHDOG_REDEEM_TIMEOUT", 10*time.Minute),

		// History defaults
		HistoryLimit: getIntOrDefault("HISTORY_LIMIT", 500),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "sqlite"),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "./state/updown.db"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarket_updown"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.StateDir == "" {
		return fmt.Errorf("STATE_DIR cannot be empty")
	}

	if c.PolymarketCLOBURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.PolymarketDataURL == "" {
		return fmt.Errorf("POLYMARKET_DATA_API_URL cannot be empty")
	}

	if c.RedeemMethod != "onchain" && c.RedeemMethod != "relayer" {
		return fmt.Errorf("REDEEM_METHOD must be 'onchain' or 'relayer', got %q", c.RedeemMethod)
	}

	if c.RedeemMethod == "relayer" && c.RelayerURL == "" {
		return fmt.Errorf("RELAYER_URL cannot be empty when REDEEM_METHOD is 'relayer'")
	}

	if c.RedeemWinnerThreshold <= 0 || c.RedeemWinnerThreshold > 1.0 {
		return fmt.Errorf("REDEEM_WINNER_THRESHOLD must be between 0 and 1.0, got %f", c.RedeemWinnerThreshold)
	}

	if c.RedeemMaxPerCycle <= 0 {
		return fmt.Errorf("REDEEM_MAX_PER_CYCLE must be positive, got %d", c.RedeemMaxPerCycle)
	}

	if c.VenueRateLimit <= 0 {
		return fmt.Errorf("VENUE_RATE_LIMIT must be positive, got %f", c.VenueRateLimit)
	}

	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}

	if c.WatchdogStaleThreshold <= 0 {
		return fmt.Errorf("WATCHDOG_STALE_THRESHOLD must be positive, got %d", c.WatchdogStaleThreshold)
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}

	if c.StorageMode != "sqlite" && c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'sqlite', 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}
