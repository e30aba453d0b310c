package quotes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// BooksClient fetches order books from the CLOB REST API.
type BooksClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewBooksClient creates a books client. limiter may be shared with
// other venue clients; nil disables rate limiting.
func NewBooksClient(baseURL string, limiter *rate.Limiter, logger *zap.Logger) *BooksClient {
	return &BooksClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

type bookRequest struct {
	TokenID string `json:"token_id"`
}

// FetchBooks retrieves the order books for the given instruments in one
// request. Instruments the venue does not answer for are simply absent
// from the result; callers tolerate partial results.
func (c *BooksClient) FetchBooks(ctx context.Context, instrumentIDs []string) ([]types.BookResponse, error) {
	if len(instrumentIDs) == 0 {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqs := make([]bookRequest, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		reqs = append(reqs, bookRequest{TokenID: id})
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal books request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/books", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.QuotaError{Message: strings.TrimSpace(string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	var books []types.BookResponse
	if err := json.Unmarshal(respBody, &books); err != nil {
		return nil, fmt.Errorf("unmarshal books: %w", err)
	}

	c.logger.Debug("books-fetched",
		zap.Int("requested", len(instrumentIDs)),
		zap.Int("returned", len(books)))

	return books, nil
}
