// Package execution submits signed orders to the CLOB: marketable buys
// sized in USDC, stop-loss sells sized in shares, resting limit orders,
// plus order status and cancel. Credentials are swappable at runtime so
// the rotation pool can reconfigure the client on quota errors.
package execution

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// TimeInForce selects the order type on the wire.
type TimeInForce string

const (
	// TIFFillOrKill crosses the book immediately or fails whole.
	TIFFillOrKill TimeInForce = "FOK"
	// TIFGoodTillCancelled rests on the book until cancelled.
	TIFGoodTillCancelled TimeInForce = "GTC"
)

const (
	polygonChainID = 137
	zeroTaker      = "0x0000000000000000000000000000000000000000"
)

// Config holds execution client configuration.
type Config struct {
	BaseURL    string
	Credential types.Credential
	// PrivateKey signs orders (hex, 0x prefix optional).
	PrivateKey string
	// FunderAddress is the proxy wallet holding funds. Empty means the
	// EOA trades for itself with signature type 0.
	FunderAddress string
	// Limiter is shared with the other venue clients; nil disables
	// rate limiting.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// Client is the CLOB execution client.
type Client struct {
	baseURL       string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA, signs orders and L2 headers
	funderAddress string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *zap.Logger

	mu         sync.RWMutex
	credential types.Credential
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cast public key to ECDSA")
	}
	address := crypto.PubkeyToAddress(*publicKey).Hex()

	sigType := model.EOA
	if cfg.FunderAddress != "" {
		sigType = model.POLY_GNOSIS_SAFE
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		privateKey:    privateKey,
		address:       address,
		funderAddress: cfg.FunderAddress,
		signatureType: sigType,
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
		credential:    cfg.Credential,
	}, nil
}

// Address returns the signing EOA address.
func (c *Client) Address() string { return c.address }

// FundingAddress returns the wallet that holds positions: the funder
// proxy when configured, the EOA otherwise.
func (c *Client) FundingAddress() string {
	if c.funderAddress != "" {
		return c.funderAddress
	}

	return c.address
}

// SetCredential installs new L2 credentials. Called by the rotation
// pool; in-flight requests finish under the credential they started
// with.
func (c *Client) SetCredential(cred types.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.credential = cred
	c.logger.Info("execution-credential-configured", zap.String("credential-id", cred.ID))
}

func (c *Client) activeCredential() types.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.credential
}

// SubmitBuy places a marketable FOK buy: notionalUsd of USDC against
// the instrument at up to limitPrice per share.
func (c *Client) SubmitBuy(ctx context.Context, instrumentID string, notionalUsd, limitPrice float64, negRisk bool) (string, error) {
	if notionalUsd <= 0 {
		return "", fmt.Errorf("notional must be positive, got %f", notionalUsd)
	}
	if limitPrice <= 0 || limitPrice > 1 {
		return "", fmt.Errorf("limit price must be in (0, 1], got %f", limitPrice)
	}

	order := &model.OrderData{
		Maker:         c.FundingAddress(),
		Taker:         zeroTaker,
		TokenId:       instrumentID,
		MakerAmount:   usdToRaw(notionalUsd),
		TakerAmount:   usdToRaw(notionalUsd / limitPrice),
		Side:          model.BUY,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	orderID, err := c.submit(ctx, order, TIFFillOrKill, negRisk, "BUY")
	if err != nil {
		return "", err
	}

	c.logger.Info("buy-submitted",
		zap.String("instrument", instrumentID),
		zap.Float64("notional-usd", notionalUsd),
		zap.Float64("limit-price", limitPrice),
		zap.String("order-id", orderID))

	return orderID, nil
}

// SubmitSell places a sell of size shares at price. FOK crosses the
// book, GTC rests at the limit.
func (c *Client) SubmitSell(ctx context.Context, instrumentID string, size, price float64, tif TimeInForce, negRisk bool) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("size must be positive, got %f", size)
	}
	if price <= 0 || price > 1 {
		return "", fmt.Errorf("price must be in (0, 1], got %f", price)
	}

	order := &model.OrderData{
		Maker:         c.FundingAddress(),
		Taker:         zeroTaker,
		TokenId:       instrumentID,
		MakerAmount:   usdToRaw(size),
		TakerAmount:   usdToRaw(size * price),
		Side:          model.SELL,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	orderID, err := c.submit(ctx, order, tif, negRisk, "SELL")
	if err != nil {
		return "", err
	}

	c.logger.Info("sell-submitted",
		zap.String("instrument", instrumentID),
		zap.Float64("size", size),
		zap.Float64("price", price),
		zap.String("tif", string(tif)),
		zap.String("order-id", orderID))

	return orderID, nil
}

func (c *Client) submit(ctx context.Context, order *model.OrderData, tif TimeInForce, negRisk bool, side string) (string, error) {
	contract := model.CTFExchange
	if negRisk {
		contract = model.NegRiskCTFExchange
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, order, contract)
	if err != nil {
		return "", fmt.Errorf("build signed order: %w", err)
	}

	cred := c.activeCredential()

	req := types.OrderSubmissionRequest{
		Order:     toWireOrder(signed),
		Owner:     cred.APIKey,
		OrderType: string(tif),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	timer := time.Now()
	respBody, status, err := c.doSigned(ctx, http.MethodPost, "/order", body, cred)
	OrderSubmitDuration.WithLabelValues(side).Observe(time.Since(timer).Seconds())
	if err != nil {
		OrdersTotal.WithLabelValues(side, "error").Inc()

		return "", err
	}

	var resp types.OrderSubmissionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		OrdersTotal.WithLabelValues(side, "error").Inc()

		return "", fmt.Errorf("parse order response (status %d): %w", status, err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		OrdersTotal.WithLabelValues(side, "rejected").Inc()

		return "", &types.OrderError{
			Code:    normalizeErrorCode(resp.ErrorMsg),
			Message: resp.ErrorMsg,
			OrderID: resp.OrderID,
			Side:    side,
		}
	}

	OrdersTotal.WithLabelValues(side, "ok").Inc()

	return resp.OrderID, nil
}

// OrderStatus queries one order by id.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id cannot be empty")
	}

	body, _, err := c.doSigned(ctx, http.MethodGet, "/data/order/"+orderID, nil, c.activeCredential())
	if err != nil {
		return nil, err
	}

	var resp types.OrderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order status: %w", err)
	}

	return &resp, nil
}

// CancelOrder cancels one resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id cannot be empty")
	}

	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}

	if _, _, err := c.doSigned(ctx, http.MethodDelete, "/order", body, c.activeCredential()); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	CancelsTotal.Inc()
	c.logger.Info("order-cancelled", zap.String("order-id", orderID))

	return nil
}

// doSigned performs one HTTP request with L2 HMAC headers and maps
// quota/auth rejections to their typed errors.
func (c *Client) doSigned(ctx context.Context, method, path string, body []byte, cred types.Credential) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature, err := signL2(cred.Secret, timestamp, method, path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("sign request: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", cred.APIKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", cred.Passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, &types.QuotaError{
			Message: strings.TrimSpace(string(respBody)),
			ResetAt: parseRateLimitReset(resp.Header),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, &types.AuthError{Message: strings.TrimSpace(string(respBody))}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, resp.StatusCode, nil
}

// signL2 builds the HMAC-SHA256 signature over timestamp+method+path+body
// using URL-safe base64 for both the secret and the signature.
func signL2(secret, timestamp, method, path string, body []byte) (string, error) {
	secretBytes, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	payload := timestamp + method + path
	if body != nil {
		payload += string(body)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(payload))

	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// parseRateLimitReset extracts the quota reset time from response
// headers, zero when absent or malformed.
func parseRateLimitReset(header http.Header) time.Time {
	raw := header.Get("X-RateLimit-Reset")
	if raw == "" {
		raw = header.Get("Retry-After")
		if raw == "" {
			return time.Time{}
		}
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}

		return time.Time{}
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(unix, 0)
}

func toWireOrder(order *model.SignedOrder) types.SignedOrderJSON {
	side := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		side = "SELL"
	}

	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          side,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// normalizeErrorCode reduces a venue error message to a stable code for
// the taxonomy and the watchdog counters.
func normalizeErrorCode(msg string) string {
	upper := strings.ToUpper(msg)
	for _, code := range []string{
		types.ErrInvalidMinTickSize,
		types.ErrInvalidMinSize,
		types.ErrNotEnoughBalance,
		types.ErrFOKNotFilled,
		types.ErrMarketNotReady,
		types.ErrUnmatched,
	} {
		if strings.Contains(upper, code) {
			return code
		}
	}

	return types.ErrUnknownStatus
}

func usdToRaw(usd float64) string {
	return strconv.FormatInt(int64(usd*1e6), 10)
}
