// Package cmd holds the CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-updown",
	Short: "Up/Down prediction market trading engine",
	Long: `Automated order execution and risk control for binary Up/Down
crypto prediction markets on Polymarket.

The engine resolves the active hourly market per symbol, watches the
order books, places late-window entries when the reference price makes
one side near-certain, runs tiered stop-loss exits, redeems winning
positions and stops itself when the watchdog sees trouble.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env (when present) and the environment.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}
