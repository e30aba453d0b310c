package markets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// GammaClient is an HTTP client for the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGammaClient creates a new Gamma API client.
func NewGammaClient(baseURL string, logger *zap.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchMarketBySlug resolves one market by its slug. The Gamma API
// answers slug queries with an array; an empty array means the window's
// market does not exist (yet).
func (c *GammaClient) FetchMarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error) {
	params := url.Values{}
	params.Add("slug", slug)
	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-updown/1.0")

	c.logger.Debug("fetching-market",
		zap.String("url", requestURL),
		zap.String("slug", slug))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var rows []types.GammaMarket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("market not found: %s", slug)
	}

	c.logger.Debug("fetched-market",
		zap.String("slug", slug),
		zap.String("condition-id", rows[0].ConditionID))

	return &rows[0], nil
}
