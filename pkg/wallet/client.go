// Package wallet reads the funding wallet's on-chain balances and its
// venue positions from the Data API, and drives the one-time USDC
// approval toward the CTF Exchange.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const (
	polygonChainID = 137

	usdceAddress       = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	usdcNativeAddress  = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	defaultDataAPIURL = "https://data-api.polymarket.com"
)

// usdcDecimals converts 6-decimal token units to whole USDC.
var usdcDecimals = big.NewFloat(1e6)

// Client reads wallet state from Polygon and the Data API.
type Client struct {
	rpcURL     string
	dataAPIURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds wallet client configuration.
type Config struct {
	RPCURL string
	// DataAPIURL overrides the venue Data API, mainly for tests.
	DataAPIURL string
	Logger     *zap.Logger
}

// Balances holds the funding wallet's on-chain token balances.
type Balances struct {
	POL        *big.Int // gas token, in wei
	USDCe      *big.Int // bridged USDC, 6 decimals
	USDCNative *big.Int // native USDC, 6 decimals
	// Allowance is the USDC.e allowance toward the CTF Exchange.
	Allowance *big.Int
}

// USDCeFloat is the bridged balance in whole USDC.
func (b *Balances) USDCeFloat() float64 {
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(b.USDCe), usdcDecimals).Float64()

	return v
}

// USDCNativeFloat is the native balance in whole USDC.
func (b *Balances) USDCNativeFloat() float64 {
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(b.USDCNative), usdcDecimals).Float64()

	return v
}

// AllowanceFloat is the exchange allowance in whole USDC.
func (b *Balances) AllowanceFloat() float64 {
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(b.Allowance), usdcDecimals).Float64()

	return v
}

// POLFloat is the gas balance in whole POL.
func (b *Balances) POLFloat() float64 {
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(b.POL), big.NewFloat(1e18)).Float64()

	return v
}

// NewClient validates cfg and builds the client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.RPCURL == "" {
		return nil, errors.New("RPC URL cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dataAPI := cfg.DataAPIURL
	if dataAPI == "" {
		dataAPI = defaultDataAPIURL
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		dataAPIURL: strings.TrimRight(dataAPI, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     cfg.Logger.With(zap.String("component", "wallet")),
	}, nil
}

// GetBalances fetches the gas and USDC balances plus the exchange
// allowance in one pass.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	pol, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get POL balance: %w", err)
	}

	usdce, err := c.erc20Balance(ctx, client, address, usdceAddress)
	if err != nil {
		return nil, fmt.Errorf("get USDC.e balance: %w", err)
	}
	usdcNative, err := c.erc20Balance(ctx, client, address, usdcNativeAddress)
	if err != nil {
		return nil, fmt.Errorf("get native USDC balance: %w", err)
	}

	allowance, err := c.erc20Allowance(ctx, client, address, usdceAddress, polygonCTFExchange)
	if err != nil {
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	return &Balances{
		POL:        pol,
		USDCe:      usdce,
		USDCNative: usdcNative,
		Allowance:  allowance,
	}, nil
}

func (c *Client) erc20Balance(ctx context.Context, client *ethclient.Client, owner common.Address, tokenAddr string) (*big.Int, error) {
	balanceOfABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	tokenAddress := common.HexToAddress(tokenAddr)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

func (c *Client) erc20Allowance(ctx context.Context, client *ethclient.Client, owner common.Address, tokenAddr, spender string) (*big.Int, error) {
	allowanceABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(allowanceABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("allowance", owner, common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	tokenAddress := common.HexToAddress(tokenAddr)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// RedeemablePositions fetches the wallet's venue positions from the
// Data API. The caller filters winners; the size threshold only trims
// dust the API would otherwise return.
func (c *Client) RedeemablePositions(ctx context.Context, wallet string) ([]types.DataAPIPosition, error) {
	url := fmt.Sprintf("%s/positions?user=%s&sizeThreshold=0.01", c.dataAPIURL, wallet)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data API error: status %d", resp.StatusCode)
	}

	var positions []types.DataAPIPosition
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := positions[:0]
	for _, pos := range positions {
		if pos.Size > 0 {
			out = append(out, pos)
		}
	}

	return out, nil
}

// Approve grants the CTF Exchange an unlimited USDC.e allowance from
// the key's address and returns the transaction hash. One-time setup
// before trading.
func (c *Client) Approve(ctx context.Context, privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return "", fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	approveABI := `[{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`
	parsedABI, err := abi.JSON(strings.NewReader(approveABI))
	if err != nil {
		return "", fmt.Errorf("parse ABI: %w", err)
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	data, err := parsedABI.Pack("approve", common.HexToAddress(polygonCTFExchange), maxUint256)
	if err != nil {
		return "", fmt.Errorf("pack approve: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	token := common.HexToAddress(usdceAddress)
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(polygonChainID)), key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	c.logger.Info("approve-submitted",
		zap.String("owner", owner.Hex()),
		zap.String("tx", signed.Hash().Hex()))

	return signed.Hash().Hex(), nil
}
