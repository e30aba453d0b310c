package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the CTF Exchange to spend USDC",
	Long: `Grants the CTF Exchange an unlimited USDC allowance from the signing
wallet. One-time on-chain transaction required before placing orders.`,
	RunE: runApprove,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY must be set")
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := wallet.NewClient(&wallet.Config{
		RPCURL:     cfg.PolygonRPCURL,
		DataAPIURL: cfg.PolymarketDataURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	fmt.Println("Submitting USDC approval for the CTF Exchange...")

	txHash, err := client.Approve(cmd.Context(), cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	fmt.Printf("Approval submitted: https://polygonscan.com/tx/%s\n", txHash)

	return nil
}
