package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Console implements Storage by rendering each entry to stdout. Used
// for dry runs and local debugging.
type Console struct {
	logger *zap.Logger
}

// NewConsole builds the console backend.
func NewConsole(logger *zap.Logger) *Console {
	logger.Info("console-storage-initialized")

	return &Console{logger: logger}
}

// SaveHistory renders the entry as a one-row table.
func (c *Console) SaveHistory(_ context.Context, entry *types.HistoryEntry) error {
	table := tablewriter.NewTable(os.Stdout)
	table.Header("Time", "Strategy", "Symbol", "Action", "Outcome", "Price", "Size", "Detail")
	if err := table.Append(
		entry.At.Format("15:04:05"),
		entry.Strategy,
		entry.Symbol,
		string(entry.Action),
		entry.Outcome,
		fmt.Sprintf("%.3f", entry.Price),
		fmt.Sprintf("%.2f", entry.Size),
		entry.Detail,
	); err != nil {
		return fmt.Errorf("render entry: %w", err)
	}

	return table.Render()
}

// Close is a no-op for console storage.
func (c *Console) Close() error {
	c.logger.Info("closing-console-storage")

	return nil
}
