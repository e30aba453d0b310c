package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/internal/app"
	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading engine",
	Long: `Starts the trading engine, which will:
1. Resolve the active Up/Down market per configured symbol
2. Poll order books and the reference price feed
3. Place entries in the final minutes before each window closes
4. Run tiered stop-loss exits on open positions
5. Redeem winning positions and watch itself for faults

Requires POLYMARKET_PRIVATE_KEY; API credentials are derived on the
fly when POLYMARKET_API_KEY is not set.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.PolymarketAPIKey == "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		cred, err := execution.DeriveAPICreds(ctx, cfg.PolymarketCLOBURL, cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("derive api credentials: %w", err)
		}
		cfg.PolymarketAPIKey = cred.APIKey
		cfg.PolymarketSecret = cred.Secret
		cfg.PolymarketPassphrase = cred.Passphrase
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
