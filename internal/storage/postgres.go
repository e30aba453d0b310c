package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS order_history (
		id            TEXT PRIMARY KEY,
		at            TIMESTAMPTZ NOT NULL,
		strategy      TEXT NOT NULL,
		symbol        TEXT NOT NULL,
		action        TEXT NOT NULL,
		position_key  TEXT,
		condition_id  TEXT,
		order_id      TEXT,
		outcome       TEXT NOT NULL,
		detail        TEXT,
		price         DOUBLE PRECISION,
		size          DOUBLE PRECISION
	)`

const postgresInsert = `INSERT INTO order_history ` + insertColumns +
	` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Postgres implements Storage over PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds the connection parameters.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgres connects, verifies the connection and ensures the schema.
func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("postgres host and database are required")
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &Postgres{db: db, logger: cfg.Logger}, nil
}

// SaveHistory inserts one entry.
func (p *Postgres) SaveHistory(ctx context.Context, entry *types.HistoryEntry) error {
	_, err := p.db.ExecContext(ctx, postgresInsert,
		entry.ID,
		entry.At,
		entry.Strategy,
		entry.Symbol,
		string(entry.Action),
		entry.PositionKey,
		entry.ConditionID,
		entry.OrderID,
		entry.Outcome,
		entry.Detail,
		entry.Price,
		entry.Size,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	p.logger.Debug("history-entry-stored",
		zap.String("id", entry.ID),
		zap.String("action", string(entry.Action)))

	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.logger.Info("closing-postgres-storage")

	return p.db.Close()
}
