package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS order_history (
		id            TEXT PRIMARY KEY,
		at            TIMESTAMP NOT NULL,
		strategy      TEXT NOT NULL,
		symbol        TEXT NOT NULL,
		action        TEXT NOT NULL,
		position_key  TEXT,
		condition_id  TEXT,
		order_id      TEXT,
		outcome       TEXT NOT NULL,
		detail        TEXT,
		price         REAL,
		size          REAL
	)`

const sqliteInsert = `INSERT INTO order_history ` + insertColumns +
	` VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLite implements Storage over a local SQLite file, the default for
// single-host deployments.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database file and ensures the schema.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; SQLite serializes anyway and this avoids lock errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("sqlite-storage-opened", zap.String("path", path))

	return &SQLite{db: db, logger: logger}, nil
}

// SaveHistory inserts one entry.
func (s *SQLite) SaveHistory(ctx context.Context, entry *types.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, sqliteInsert,
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

	return nil
}

// Close closes the database file.
func (s *SQLite) Close() error {
	s.logger.Info("closing-sqlite-storage")

	return s.db.Close()
}
