package config

import (
	"os"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		LogLevel:                "info",
		HTTPPort:                "8080",
		StateDir:                "./state",
		StrategyFile:            "./strategies.yaml",
		PolymarketCLOBURL:       "https://clob.polymarket.com",
		PolymarketWSURL:         "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		PolymarketGammaURL:      "https://gamma-api.polymarket.com",
		PolymarketDataURL:       "https://data-api.polymarket.com",
		PolygonRPCURL:           "https://polygon-rpc.com",
		VenueRateLimit:          8.0,
		VenueRateBurst:          16,
		SnapshotRefreshInterval: 30 * time.Second,
		QuotePollInterval:       2 * time.Second,
		QuoteStaleCeiling:       10 * time.Second,
		LockTTL:                 30 * time.Second,
		LockGrace:               5 * time.Second,
		PositionRetention:       48 * time.Hour,
		RedeemMethod:            "onchain",
		RedeemMaxPerCycle:       10,
		RedeemWinnerThreshold:   0.999,
		WatchdogStaleThreshold:  5,
		WatchdogRedeemThreshold: 3,
		WatchdogOrderThreshold:  3,
		HistoryLimit:            500,
		StorageMode:             "console",
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.PolymarketCLOBURL != "https://clob.polymarket.com" {
		t.Errorf("expected default CLOB URL, got %q", cfg.PolymarketCLOBURL)
	}
	if cfg.RedeemMaxPerCycle != 10 {
		t.Errorf("expected default RedeemMaxPerCycle 10, got %d", cfg.RedeemMaxPerCycle)
	}
	if cfg.RedeemWinnerThreshold != 0.999 {
		t.Errorf("expected default RedeemWinnerThreshold 0.999, got %f", cfg.RedeemWinnerThreshold)
	}
	if cfg.PositionRetention != 48*time.Hour {
		t.Errorf("expected default PositionRetention 48h, got %v", cfg.PositionRetention)
	}
	if cfg.WatchdogStaleThreshold != 5 {
		t.Errorf("expected default WatchdogStaleThreshold 5, got %d", cfg.WatchdogStaleThreshold)
	}
	if cfg.StorageMode != "sqlite" {
		t.Errorf("expected default StorageMode sqlite, got %q", cfg.StorageMode)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Run("duration_override", func(t *testing.T) {
		os.Setenv("REDEEM_INTERVAL", "90s")
		t.Cleanup(func() {
			os.Unsetenv("REDEEM_INTERVAL")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.RedeemInterval != 90*time.Second {
			t.Errorf("expected RedeemInterval to be 90s, got %v", cfg.RedeemInterval)
		}
	})

	t.Run("int_override", func(t *testing.T) {
		os.Setenv("REDEEM_MAX_PER_CYCLE", "3")
		t.Cleanup(func() {
			os.Unsetenv("REDEEM_MAX_PER_CYCLE")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.RedeemMaxPerCycle != 3 {
			t.Errorf("expected RedeemMaxPerCycle to be 3, got %d", cfg.RedeemMaxPerCycle)
		}
	})

	t.Run("bool_override", func(t *testing.T) {
		os.Setenv("QUOTE_USE_WEBSOCKET", "false")
		t.Cleanup(func() {
			os.Unsetenv("QUOTE_USE_WEBSOCKET")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.QuoteUseWebsocket {
			t.Error("expected QuoteUseWebsocket to be false")
		}
	})

	t.Run("malformed_value_falls_back_to_default", func(t *testing.T) {
		os.Setenv("VENUE_RATE_LIMIT", "not_a_number")
		t.Cleanup(func() {
			os.Unsetenv("VENUE_RATE_LIMIT")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.VenueRateLimit != 8.0 {
			t.Errorf("expected fallback VenueRateLimit 8.0, got %f", cfg.VenueRateLimit)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "empty_http_port",
			mutate: func(c *Config) { c.HTTPPort = "" },
			errMsg: "HTTP_PORT cannot be empty",
		},
		{
			name:   "empty_state_dir",
			mutate: func(c *Config) { c.StateDir = "" },
			errMsg: "STATE_DIR cannot be empty",
		},
		{
			name:   "bad_redeem_method",
			mutate: func(c *Config) { c.RedeemMethod = "carrier-pigeon" },
			errMsg: "REDEEM_METHOD must be 'onchain' or 'relayer', got \"carrier-pigeon\"",
		},
		{
			name:   "relayer_without_url",
			mutate: func(c *Config) { c.RedeemMethod = "relayer"; c.RelayerURL = "" },
			errMsg: "RELAYER_URL cannot be empty when REDEEM_METHOD is 'relayer'",
		},
		{
			name:   "winner_threshold_above_one",
			mutate: func(c *Config) { c.RedeemWinnerThreshold = 1.5 },
			errMsg: "REDEEM_WINNER_THRESHOLD must be between 0 and 1.0, got 1.500000",
		},
		{
			name:   "zero_max_per_cycle",
			mutate: func(c *Config) { c.RedeemMaxPerCycle = 0 },
			errMsg: "REDEEM_MAX_PER_CYCLE must be positive, got 0",
		},
		{
			name:   "negative_rate_limit",
			mutate: func(c *Config) { c.VenueRateLimit = -1 },
			errMsg: "VENUE_RATE_LIMIT must be positive, got -1.000000",
		},
		{
			name:   "zero_lock_ttl",
			mutate: func(c *Config) { c.LockTTL = 0 },
			errMsg: "LOCK_TTL must be positive, got 0s",
		},
		{
			name:   "bad_storage_mode",
			mutate: func(c *Config) { c.StorageMode = "oracle" },
			errMsg: "STORAGE_MODE must be 'sqlite', 'postgres' or 'console', got \"oracle\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
