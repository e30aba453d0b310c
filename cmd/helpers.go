package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"

	"github.com/mselser95/polymarket-updown/pkg/config"
)

// fundingWallet resolves the address holding positions: the proxy
// wallet when configured, the signing EOA otherwise.
func fundingWallet(cfg *config.Config) (string, error) {
	if cfg.FunderAddress != "" {
		return cfg.FunderAddress, nil
	}

	if cfg.PrivateKey == "" {
		return "", fmt.Errorf("POLYMARKET_PRIVATE_KEY or FUNDER_ADDRESS must be set")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("cast public key to ECDSA")
	}

	return crypto.PubkeyToAddress(*publicKey).Hex(), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}
