// Package storage mirrors the action history into durable backends:
// PostgreSQL, SQLite, or a console writer for dry runs. The in-memory
// history log stays authoritative; a mirror failure never fails the
// action that produced the entry.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Storage receives every recorded history entry.
type Storage interface {
	// SaveHistory persists one entry.
	SaveHistory(ctx context.Context, entry *types.HistoryEntry) error

	// Close releases the backend connection.
	Close() error
}

// Config selects and wires a backend.
type Config struct {
	// Mode is "postgres", "sqlite" or "console".
	Mode string

	SQLitePath string

	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	SSLMode      string

	Logger *zap.Logger
}

// New builds the configured backend.
func New(cfg *Config) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	switch cfg.Mode {
	case "console":
		return NewConsole(cfg.Logger), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath, cfg.Logger)
	case "postgres":
		return NewPostgres(&PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.SSLMode,
			Logger:   cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}

// insertColumns is shared by the SQL backends; only the placeholder
// style differs.
const insertColumns = `(id, at, strategy, symbol, action, position_key, condition_id, order_id, outcome, detail, price, size)`
