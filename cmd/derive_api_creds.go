package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/internal/execution"
)

//nolint:gochecknoglobals // Cobra boilerplate
var deriveAPICredsCmd = &cobra.Command{
	Use:   "derive-api-creds",
	Short: "Derive CLOB API credentials from the private key",
	Long: `Derives (or creates) the CLOB L2 API credentials for the signing
wallet and prints them for the environment:

  POLYMARKET_API_KEY
  POLYMARKET_SECRET
  POLYMARKET_PASSPHRASE

The engine derives these on the fly when unset; pin them in .env to
skip the startup roundtrip.`,
	RunE: runDeriveAPICreds,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(deriveAPICredsCmd)
}

func runDeriveAPICreds(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY must be set")
	}

	cred, err := execution.DeriveAPICreds(cmd.Context(), cfg.PolymarketCLOBURL, cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("derive api credentials: %w", err)
	}

	fmt.Printf("POLYMARKET_API_KEY=%s\n", cred.APIKey)
	fmt.Printf("POLYMARKET_SECRET=%s\n", cred.Secret)
	fmt.Printf("POLYMARKET_PASSPHRASE=%s\n", cred.Passphrase)

	return nil
}
