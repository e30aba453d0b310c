// Package pricefeed supplies spot reference prices and 1-minute candles
// for the configured symbols, polled from a Binance-compatible kline
// endpoint.
package pricefeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Candle is one 1-minute OHLC bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Body is the absolute open-to-close move.
func (c Candle) Body() float64 {
	body := c.Close - c.Open
	if body < 0 {
		return -body
	}

	return body
}

// UpperWick is the range above the body.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}

	return c.High - top
}

// LowerWick is the range below the body.
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}

	return bottom - c.Low
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Config holds price feed configuration.
type Config struct {
	BaseURL string
	// QuoteAsset is appended to symbols to form venue pairs (BTC ->
	// BTCUSDT).
	QuoteAsset string
	// Limiter is shared with other venue clients; nil disables rate
	// limiting.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// Client fetches klines with a small per-minute cache so repeated
// reference lookups inside one settlement window do not refetch.
type Client struct {
	baseURL    string
	quoteAsset string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]Candle // symbol + minute bucket

	now func() time.Time
}

// New validates cfg and builds a Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		quoteAsset: quote,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
		cache:      make(map[string]Candle),
		now:        time.Now,
	}, nil
}

// ReferencePrice returns the 1-minute close at or before the given
// time. Closed candles are cached; the still-forming candle is not.
func (c *Client) ReferencePrice(ctx context.Context, symbol string, atOrBefore time.Time) (float64, error) {
	bucket := atOrBefore.UTC().Truncate(time.Minute)
	key := symbol + "@" + strconv.FormatInt(bucket.Unix(), 10)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached.Close, nil
	}

	candles, err := c.fetchKlines(ctx, symbol, 1, bucket.Add(time.Minute-time.Millisecond))
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no kline for %s at %s", symbol, bucket.Format(time.RFC3339))
	}

	candle := candles[len(candles)-1]
	if candle.OpenTime.Add(time.Minute).Before(c.now()) {
		c.mu.Lock()
		c.cache[key] = candle
		c.mu.Unlock()
	}

	return candle.Close, nil
}

// RecentCandles returns the last `minutes` closed 1-minute candles,
// oldest first.
func (c *Client) RecentCandles(ctx context.Context, symbol string, minutes int) ([]Candle, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("minutes must be positive, got %d", minutes)
	}

	// One extra bar covers the still-forming candle which is trimmed.
	candles, err := c.fetchKlines(ctx, symbol, minutes+1, time.Time{})
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Truncate(time.Minute)
	closed := candles[:0]
	for _, k := range candles {
		if k.OpenTime.Before(cutoff) {
			closed = append(closed, k)
		}
	}
	if len(closed) > minutes {
		closed = closed[len(closed)-minutes:]
	}

	return closed, nil
}

// RecentCloses returns the last `minutes` closed 1-minute closes,
// oldest first.
func (c *Client) RecentCloses(ctx context.Context, symbol string, minutes int) ([]float64, error) {
	candles, err := c.RecentCandles(ctx, symbol, minutes)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(candles))
	for i, k := range candles {
		closes[i] = k.Close
	}

	return closes, nil
}

func (c *Client) fetchKlines(ctx context.Context, symbol string, limit int, endTime time.Time) ([]Candle, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol)+c.quoteAsset)
	params.Set("interval", "1m")
	params.Set("limit", strconv.Itoa(limit))
	if !endTime.IsZero() {
		params.Set("endTime", strconv.FormatInt(endTime.UnixMilli(), 10))
	}

	requestURL := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	timer := time.Now()
	resp, err := c.httpClient.Do(req)
	FetchDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		FetchErrorsTotal.Inc()

		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		FetchErrorsTotal.Inc()

		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	// Kline rows arrive as mixed-type arrays: open time in ms, then
	// OHLCV as decimal strings.
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal klines: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		candle := Candle{OpenTime: time.UnixMilli(openMs).UTC()}
		fields := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close}
		ok := true
		for i, dst := range fields {
			var raw string
			if err := json.Unmarshal(row[i+1], &raw); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if ok {
			candles = append(candles, candle)
		}
	}

	c.logger.Debug("klines-fetched",
		zap.String("symbol", symbol),
		zap.Int("count", len(candles)))

	return candles, nil
}
