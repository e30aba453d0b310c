package redeem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const relayerPollInterval = 2 * time.Second

// Relayer submits redemptions through Polymarket's relayer, which
// executes the on-chain call gas-free on behalf of the proxy wallet.
type Relayer struct {
	baseURL    string
	address    string
	httpClient *http.Client
	logger     *zap.Logger
}

// RelayerConfig wires the relayer path.
type RelayerConfig struct {
	BaseURL string
	// Address is the wallet whose positions are redeemed.
	Address string
	Logger  *zap.Logger
}

// NewRelayer validates cfg and builds the submitter.
func NewRelayer(cfg *RelayerConfig) (*Relayer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("relayer URL cannot be empty")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("wallet address cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Relayer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		address:    cfg.Address,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     cfg.Logger.With(zap.String("component", "redeem-relayer")),
	}, nil
}

type relayerSubmitRequest struct {
	ConditionID string `json:"conditionId"`
	NegRisk     bool   `json:"negRisk"`
	Address     string `json:"address"`
}

type relayerSubmitResponse struct {
	TransactionID string `json:"transactionID"`
	Hash          string `json:"transactionHash"`
	Error         string `json:"error"`
}

type relayerStatusResponse struct {
	State string `json:"state"`
	Hash  string `json:"transactionHash"`
	Error string `json:"error"`
}

// SubmitRedeem posts the redemption and returns the relayer's
// transaction id as the reference.
func (r *Relayer) SubmitRedeem(ctx context.Context, req Request, cred types.Credential) (string, error) {
	body, err := json.Marshal(relayerSubmitRequest{
		ConditionID: req.ConditionID,
		NegRisk:     req.NegRisk,
		Address:     r.address,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := r.do(ctx, http.MethodPost, "/redeem", body, cred)
	if err != nil {
		return "", err
	}

	var resp relayerSubmitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("relayer rejected redeem: %s", resp.Error)
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("relayer returned no transaction id")
	}

	r.logger.Info("relayer-redeem-submitted",
		zap.String("condition-id", req.ConditionID),
		zap.String("transaction-id", resp.TransactionID))

	return resp.TransactionID, nil
}

// AwaitConfirmation polls the relayer's transaction state until it goes
// terminal. Mined maps to an executed receipt, failed to a reverted one.
func (r *Relayer) AwaitConfirmation(ctx context.Context, txRef string) (*Confirmation, error) {
	ticker := time.NewTicker(relayerPollInterval)
	defer ticker.Stop()

	for {
		respBody, err := r.do(ctx, http.MethodGet, "/transaction/"+txRef, nil, types.Credential{})
		if err == nil {
			var status relayerStatusResponse
			if err := json.Unmarshal(respBody, &status); err != nil {
				return nil, fmt.Errorf("decode status: %w", err)
			}

			switch strings.ToUpper(status.State) {
			case "STATE_MINED", "STATE_CONFIRMED", "MINED", "CONFIRMED":
				// The relayer does not expose receipt logs; payout
				// reconciliation reads balances separately.
				return &Confirmation{TxStatus: 1}, nil
			case "STATE_FAILED", "FAILED":
				return &Confirmation{TxStatus: 0}, nil
			}
		} else {
			r.logger.Debug("relayer-status-poll-failed", zap.String("transaction-id", txRef), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await relayer transaction %s: %w", txRef, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Relayer) do(ctx context.Context, method, path string, body []byte, cred types.Credential) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cred.APIKey != "" {
		req.Header.Set("POLY_API_KEY", cred.APIKey)
		req.Header.Set("POLY_PASSPHRASE", cred.Passphrase)
		req.Header.Set("POLY_ADDRESS", r.address)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &types.QuotaError{Message: strings.TrimSpace(string(respBody))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &types.AuthError{Message: strings.TrimSpace(string(respBody))}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("relayer error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
