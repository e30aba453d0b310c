package markets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// MetadataClient fetches instrument metadata from the Polymarket CLOB API.
type MetadataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMetadataClient creates a new metadata client.
func NewMetadataClient(baseURL string) *MetadataClient {
	return &MetadataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchTickSize fetches the minimum tick size for an instrument.
func (c *MetadataClient) FetchTickSize(ctx context.Context, tokenID string) (float64, error) {
	url := fmt.Sprintf("%s/tick-size?token_id=%s", c.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var data struct {
		MinimumTickSize float64 `json:"minimum_tick_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, err
	}

	return data.MinimumTickSize, nil
}

// FetchMinOrderSize fetches the minimum order size for an instrument
// from the book endpoint, defaulting to 5.0 when the venue does not
// report one.
func (c *MetadataClient) FetchMinOrderSize(ctx context.Context, tokenID string) (float64, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return defaultMinOrderSize, nil
	}

	var data struct {
		MinSize float64 `json:"min_size"`
		Market  struct {
			MinSize float64 `json:"minimum_order_size"`
		} `json:"market"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return defaultMinOrderSize, nil
	}

	if data.MinSize > 0 {
		return data.MinSize, nil
	}
	if data.Market.MinSize > 0 {
		return data.Market.MinSize, nil
	}

	return defaultMinOrderSize, nil
}

const (
	defaultTickSize     = 0.01
	defaultMinOrderSize = 5.0
)

// FetchTokenMetadata fetches tick size and min order size together,
// substituting defaults for whichever call fails.
func (c *MetadataClient) FetchTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize float64, err error) {
	tickSize, err = c.FetchTickSize(ctx, tokenID)
	if err != nil || tickSize <= 0 {
		MetadataFetchErrorsTotal.Inc()
		tickSize = defaultTickSize
	}

	minOrderSize, err = c.FetchMinOrderSize(ctx, tokenID)
	if err != nil || minOrderSize <= 0 {
		minOrderSize = defaultMinOrderSize
	}

	return tickSize, minOrderSize, nil
}
