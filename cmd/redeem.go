package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/internal/credentials"
	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/internal/redeem"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	redeemMarket string

	redeemCmd = &cobra.Command{
		Use:   "redeem",
		Short: "Redeem resolved positions for the funding wallet",
		Long: `Drains redeemable positions outside the engine loop. Without
flags one bounded drain cycle runs over every winning Data API
position; --market submits a single conditionId and waits for its
confirmation. The command shares the engine's redemption ledger, so
markets the running engine already submitted are skipped.`,
		RunE: runRedeem,
	}
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	redeemCmd.Flags().StringVar(&redeemMarket, "market", "", "conditionId to redeem (default: full drain cycle)")
	rootCmd.AddCommand(redeemCmd)
}

func runRedeem(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	drainer, err := buildDrainer(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	if redeemMarket != "" {
		redemption, err := drainer.DrainMarket(cmd.Context(), redeemMarket)
		if err != nil {
			return fmt.Errorf("drain market %s: %w", redeemMarket, err)
		}
		fmt.Printf("Redeemed %s: status %s, tx %s, payout $%.2f\n",
			shortID(redemption.ConditionID), redemption.Status, redemption.TxReference, redemption.PayoutUsd)
		return nil
	}

	submitted, err := drainer.Cycle(cmd.Context())
	if err != nil {
		return fmt.Errorf("drain cycle: %w", err)
	}
	if submitted == 0 {
		fmt.Println("Nothing to redeem.")
		return nil
	}
	fmt.Printf("Submitted %d redemption(s). Confirmations reconcile in the background;\n", submitted)
	fmt.Println("run 'polymarket-updown positions --redeemable-only' to re-check.")

	return nil
}

// buildDrainer assembles the standalone drain wiring: wallet positions,
// the configured submitter path and the shared credential pool.
func buildDrainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redeem.Drainer, error) {
	state, err := statefile.New(cfg.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open state directory: %w", err)
	}

	walletClient, err := wallet.NewClient(&wallet.Config{
		RPCURL:     cfg.PolygonRPCURL,
		DataAPIURL: cfg.PolymarketDataURL,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup wallet client: %w", err)
	}

	address, err := fundingWallet(cfg)
	if err != nil {
		return nil, err
	}

	var submitter redeem.Submitter
	switch types.RedeemMethod(cfg.RedeemMethod) {
	case types.RedeemRelayer:
		submitter, err = redeem.NewRelayer(&redeem.RelayerConfig{
			BaseURL: cfg.RelayerURL,
			Address: address,
			Logger:  logger,
		})
	default:
		submitter, err = redeem.NewOnChain(&redeem.OnChainConfig{
			RPCURL:        cfg.PolygonRPCURL,
			PrivateKey:    cfg.PrivateKey,
			FunderAddress: cfg.FunderAddress,
			Logger:        logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("setup redeem submitter: %w", err)
	}

	seed := seedCredential(cfg)
	if len(seed) == 0 {
		deriveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		cred, err := execution.DeriveAPICreds(deriveCtx, cfg.PolymarketCLOBURL, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("derive api credentials: %w", err)
		}
		seed = []types.Credential{*cred}
	}

	credPool, err := credentials.New(&credentials.Config{
		Credentials:          seed,
		QuotaCooldownDefault: cfg.QuotaCooldownDefault,
		AuthCooldown:         cfg.AuthCooldown,
		State:                state,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup credential pool: %w", err)
	}

	drainer, err := redeem.New(&redeem.Config{
		Method:          types.RedeemMethod(cfg.RedeemMethod),
		Interval:        cfg.RedeemInterval,
		MaxPerCycle:     cfg.RedeemMaxPerCycle,
		Delay:           cfg.RedeemDelay,
		ConfirmTimeout:  cfg.RedeemConfirmTimeout,
		WinnerThreshold: cfg.RedeemWinnerThreshold,
		DustSize:        cfg.RedeemDustSize,
		Wallet:          address,
		Positions:       walletClient,
		Submitter:       submitter,
		Credentials:     credPool,
		State:           state,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup drainer: %w", err)
	}

	return drainer, nil
}

// seedCredential mirrors the engine's env-seeded pool.
func seedCredential(cfg *config.Config) []types.Credential {
	if cfg.PolymarketAPIKey == "" {
		return nil
	}

	return []types.Credential{{
		ID:         "env",
		APIKey:     cfg.PolymarketAPIKey,
		Secret:     cfg.PolymarketSecret,
		Passphrase: cfg.PolymarketPassphrase,
	}}
}
