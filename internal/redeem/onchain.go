package redeem

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	updown "github.com/mselser95/polymarket-updown/pkg/types"
)

const (
	polygonChainID = 137

	ctfAddress        = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	usdceAddress      = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	usdcNativeAddress = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"

	receiptPollInterval = 2 * time.Second
)

const redeemPositionsABI = `[{"constant":false,"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"type":"function"}]`

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
var erc20TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// OnChain submits redeemPositions directly to the conditional tokens
// contract on Polygon and reconciles payouts from transaction receipts.
type OnChain struct {
	rpcURL     string
	privateKey *ecdsa.PrivateKey
	sender     common.Address
	// payoutWallet receives the USDC payout: the proxy wallet when one
	// is configured, otherwise the EOA itself.
	payoutWallet common.Address
	contractABI  abi.ABI
	logger       *zap.Logger
}

// OnChainConfig wires the on-chain path.
type OnChainConfig struct {
	RPCURL     string
	PrivateKey string
	// FunderAddress is the proxy wallet holding positions; empty means
	// the EOA holds them directly.
	FunderAddress string
	Logger        *zap.Logger
}

// NewOnChain validates cfg and builds the submitter.
func NewOnChain(cfg *OnChainConfig) (*OnChain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	payout := sender
	if cfg.FunderAddress != "" {
		if !common.IsHexAddress(cfg.FunderAddress) {
			return nil, fmt.Errorf("invalid funder address %q", cfg.FunderAddress)
		}
		payout = common.HexToAddress(cfg.FunderAddress)
	}

	parsedABI, err := abi.JSON(strings.NewReader(redeemPositionsABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	return &OnChain{
		rpcURL:       cfg.RPCURL,
		privateKey:   key,
		sender:       sender,
		payoutWallet: payout,
		contractABI:  parsedABI,
		logger:       cfg.Logger.With(zap.String("component", "redeem-onchain")),
	}, nil
}

// SubmitRedeem sends redeemPositions for the market's binary outcome
// pair and returns the transaction hash. The credential is unused on
// this path; redemption is permissionless on-chain.
func (o *OnChain) SubmitRedeem(ctx context.Context, req Request, _ updown.Credential) (string, error) {
	client, err := ethclient.DialContext(ctx, o.rpcURL)
	if err != nil {
		return "", fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	data, err := o.contractABI.Pack("redeemPositions",
		common.HexToAddress(usdceAddress),
		[32]byte{}, // root collection
		common.HexToHash(req.ConditionID),
		[]*big.Int{big.NewInt(1), big.NewInt(2)})
	if err != nil {
		return "", fmt.Errorf("pack redeemPositions: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, o.sender)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(ctfAddress)
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: o.sender,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(polygonChainID)), o.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	o.logger.Info("redeem-tx-sent",
		zap.String("condition-id", req.ConditionID),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("gas-limit", gasLimit))

	return signed.Hash().Hex(), nil
}

// AwaitConfirmation polls for the receipt until ctx expires, then sums
// the USDC Transfer logs landing on the payout wallet.
func (o *OnChain) AwaitConfirmation(ctx context.Context, txRef string) (*Confirmation, error) {
	client, err := ethclient.DialContext(ctx, o.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	hash := common.HexToHash(txRef)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &Confirmation{
				TxStatus:  receipt.Status,
				PayoutUsd: o.payoutFromReceipt(receipt),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await receipt %s: %w", txRef, ctx.Err())
		case <-ticker.C:
		}
	}
}

// payoutFromReceipt sums ERC-20 Transfer values in USDC (bridged or
// native) credited to the payout wallet, in whole USDC.
func (o *OnChain) payoutFromReceipt(receipt *types.Receipt) float64 {
	usdce := common.HexToAddress(usdceAddress)
	usdcNative := common.HexToAddress(usdcNativeAddress)

	total := new(big.Int)
	for _, lg := range receipt.Logs {
		if lg.Address != usdce && lg.Address != usdcNative {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != erc20TransferTopic {
			continue
		}
		if common.BytesToAddress(lg.Topics[2].Bytes()) != o.payoutWallet {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
	}

	// USDC carries 6 decimals.
	payout, _ := new(big.Float).Quo(new(big.Float).SetInt(total), big.NewFloat(1e6)).Float64()

	return payout
}
