package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show funding wallet balances",
	Long: `Shows the funding wallet's POL (gas), USDC balances and the USDC
allowance granted to the CTF Exchange.`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	address, err := fundingWallet(cfg)
	if err != nil {
		return err
	}

	balances, err := client.GetBalances(cmd.Context(), common.HexToAddress(address))
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	fmt.Printf("Wallet: %s\n\n", address)
	fmt.Printf("POL (gas):      %.4f\n", balances.POLFloat())
	fmt.Printf("USDC.e:         %.2f\n", balances.USDCeFloat())
	fmt.Printf("USDC (native):  %.2f\n", balances.USDCNativeFloat())
	fmt.Printf("Allowance:      %.2f\n", balances.AllowanceFloat())

	if balances.AllowanceFloat() == 0 {
		fmt.Println("\nThe CTF Exchange has no USDC allowance; run 'approve' before trading.")
	}

	return nil
}
