package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StrategyFile is the YAML document declaring every strategy the engine
// runs. Strategies are persisted back through the state store when
// mutated at runtime.
type StrategyFile struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// StrategyConfig parameterizes one generic strategy runner instance.
type StrategyConfig struct {
	Name      string   `yaml:"name"`
	Enabled   bool     `yaml:"enabled"`
	Symbols   []string `yaml:"symbols"`
	Timeframe string   `yaml:"timeframe"`

	// Entry
	NotionalUsd    float64       `yaml:"notional_usd"`
	MinProbability float64       `yaml:"min_probability"`
	PriceBuffer    float64       `yaml:"price_buffer"`
	EntryWindow    time.Duration `yaml:"entry_window"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	Cooldown       time.Duration `yaml:"cooldown"`

	// Delta / adaptive threshold (disabled while MinDelta is zero)
	MinDelta          float64 `yaml:"min_delta"`
	BigMoveMultiplier float64 `yaml:"big_move_multiplier"`
	RevertCount       int     `yaml:"revert_count"`

	// Trend filter
	TrendCloses int `yaml:"trend_closes"`

	// Candle guard
	Guard GuardConfig `yaml:"guard"`

	// Tiered exits
	StopLoss StopLossConfig `yaml:"stop_loss"`

	// Staggered entry legs
	SplitEntry SplitEntryConfig `yaml:"split_entry"`
}

// GuardConfig bounds candle-derived risk features. Each breached bound
// adds one to the guard score; a score above MaxScore skips the entry.
type GuardConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MaxScore       int     `yaml:"max_score"`
	BodyFactor     float64 `yaml:"body_factor"`      // candle body vs recent average
	WickRatioMax   float64 `yaml:"wick_ratio_max"`   // opposing wick vs body
	MinMarginRatio float64 `yaml:"min_margin_ratio"` // delta margin above threshold
}

// StopLossConfig is the two-tier cut schedule for one strategy.
type StopLossConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Cut1Cents          float64       `yaml:"cut1_cents"`
	Cut1TargetPct      float64       `yaml:"cut1_target_pct"`
	Cut2Cents          float64       `yaml:"cut2_cents"`
	Cut2TargetPct      float64       `yaml:"cut2_target_pct"`
	MinSecondsToExpiry float64       `yaml:"min_seconds_to_expiry"`
	MinOrderSize       float64       `yaml:"min_order_size"`
	Interval           time.Duration `yaml:"interval"`
	RestingMaxAge      time.Duration `yaml:"resting_max_age"`
}

// SplitEntryConfig staggers the strategy notional across legs placed in
// the final minutes before expiry.
type SplitEntryConfig struct {
	Enabled bool       `yaml:"enabled"`
	Legs    []EntryLeg `yaml:"legs"`
}

// EntryLeg is one staggered slice of the notional.
type EntryLeg struct {
	Pct                 float64 `yaml:"pct"`
	SecondsBeforeExpiry float64 `yaml:"seconds_before_expiry"`
}

// LoadStrategies reads and validates the strategy YAML file.
func LoadStrategies(path string) ([]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy file %q: %w", path, err)
	}

	var file StrategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy file %q: %w", path, err)
	}

	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategy file %q declares no strategies", path)
	}

	for i := range file.Strategies {
		file.Strategies[i].applyDefaults()
		if err := file.Strategies[i].Validate(); err != nil {
			return nil, fmt.Errorf("strategy %q: %w", file.Strategies[i].Name, err)
		}
	}

	return file.Strategies, nil
}

func (s *StrategyConfig) applyDefaults() {
	if s.TickInterval <= 0 {
		s.TickInterval = 5 * time.Second
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 90 * time.Second
	}
	if s.EntryWindow <= 0 {
		s.EntryWindow = 10 * time.Minute
	}
	if s.MinProbability <= 0 {
		s.MinProbability = 0.90
	}
	if s.PriceBuffer <= 0 {
		s.PriceBuffer = 0.02
	}
	if s.BigMoveMultiplier <= 0 {
		s.BigMoveMultiplier = 2.0
	}
	if s.RevertCount <= 0 {
		s.RevertCount = 4
	}
	if s.TrendCloses <= 0 {
		s.TrendCloses = 3
	}
	if s.Guard.Enabled && s.Guard.MaxScore <= 0 {
		s.Guard.MaxScore = 1
	}
	if s.StopLoss.Enabled {
		if s.StopLoss.Interval <= 0 {
			s.StopLoss.Interval = 2 * time.Second
		}
		if s.StopLoss.RestingMaxAge <= 0 {
			s.StopLoss.RestingMaxAge = 20 * time.Second
		}
		if s.StopLoss.MinOrderSize <= 0 {
			s.StopLoss.MinOrderSize = 5
		}
	}
}

// Validate checks that the strategy declaration is executable.
func (s *StrategyConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(s.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}

	if s.Timeframe == "" {
		return fmt.Errorf("timeframe cannot be empty")
	}

	if s.NotionalUsd <= 0 {
		return fmt.Errorf("notional_usd must be positive, got %f", s.NotionalUsd)
	}

	if s.MinProbability <= 0 || s.MinProbability >= 1 {
		return fmt.Errorf("min_probability must be between 0 and 1, got %f", s.MinProbability)
	}

	if s.MinDelta < 0 {
		return fmt.Errorf("min_delta cannot be negative, got %f", s.MinDelta)
	}

	if s.StopLoss.Enabled {
		if s.StopLoss.Cut1Cents <= 0 || s.StopLoss.Cut2Cents <= s.StopLoss.Cut1Cents {
			return fmt.Errorf("stop_loss cuts must satisfy 0 < cut1_cents < cut2_cents, got %f/%f",
				s.StopLoss.Cut1Cents, s.StopLoss.Cut2Cents)
		}
		if s.StopLoss.Cut1TargetPct <= 0 || s.StopLoss.Cut1TargetPct > 1 ||
			s.StopLoss.Cut2TargetPct < s.StopLoss.Cut1TargetPct || s.StopLoss.Cut2TargetPct > 1 {
			return fmt.Errorf("stop_loss targets must satisfy 0 < cut1 <= cut2 <= 1, got %f/%f",
				s.StopLoss.Cut1TargetPct, s.StopLoss.Cut2TargetPct)
		}
	}

	if s.SplitEntry.Enabled {
		if len(s.SplitEntry.Legs) == 0 {
			return fmt.Errorf("split_entry enabled with no legs")
		}
		total := 0.0
		lastOffset := -1.0
		for i, leg := range s.SplitEntry.Legs {
			if leg.Pct <= 0 || leg.Pct > 1 {
				return fmt.Errorf("split_entry leg %d pct must be in (0, 1], got %f", i, leg.Pct)
			}
			if leg.SecondsBeforeExpiry <= 0 {
				return fmt.Errorf("split_entry leg %d seconds_before_expiry must be positive", i)
			}
			if lastOffset > 0 && leg.SecondsBeforeExpiry >= lastOffset {
				return fmt.Errorf("split_entry legs must be ordered from earliest to latest")
			}
			lastOffset = leg.SecondsBeforeExpiry
			total += leg.Pct
		}
		if total > 1.0001 {
			return fmt.Errorf("split_entry leg pcts sum to %f, cannot exceed 1", total)
		}
	}

	return nil
}
