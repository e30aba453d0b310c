package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mselser95/polymarket-updown/internal/strategy"
	"github.com/mselser95/polymarket-updown/internal/watchdog"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// PositionSource lists tracked positions. The position tracker
// implements it.
type PositionSource interface {
	All() []types.Position
}

// HistorySource lists recent action history, newest first.
type HistorySource interface {
	Recent(limit int) []types.HistoryEntry
}

// MarketSource lists unexpired markets. The market snapshot
// implements it.
type MarketSource interface {
	ListActiveMarkets(ctx context.Context, symbols, timeframes []string) []types.Market
}

// AutomationSource reports whether automated trading is running and
// why it last stopped.
type AutomationSource interface {
	Enabled() bool
	LastReport() (watchdog.Report, bool)
}

// StrategySource exposes one strategy runner's state. The strategy
// engine implements it.
type StrategySource interface {
	Status() strategy.Status
}

type statusHandler struct {
	positions  PositionSource
	history    HistorySource
	markets    MarketSource
	automation AutomationSource
	strategies []StrategySource
	startedAt  time.Time
}

func newStatusHandler(cfg *Config) *statusHandler {
	return &statusHandler{
		positions:  cfg.Positions,
		history:    cfg.History,
		markets:    cfg.Markets,
		automation: cfg.Automation,
		strategies: cfg.Strategies,
		startedAt:  time.Now(),
	}
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	AutomationEnabled bool              `json:"automation_enabled"`
	Uptime            string            `json:"uptime"`
	ActiveMarkets     int               `json:"active_markets"`
	OpenPositions     int               `json:"open_positions"`
	Strategies        []strategy.Status `json:"strategies,omitempty"`
	LastStop          *watchdog.Report  `json:"last_stop,omitempty"`
}

// MarketResponse is one market in the GET /api/markets payload.
type MarketResponse struct {
	ConditionID string    `json:"condition_id"`
	Slug        string    `json:"slug"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	UpTokenID   string    `json:"up_token_id"`
	DownTokenID string    `json:"down_token_id"`
	PriceToBeat float64   `json:"price_to_beat,omitempty"`
	NegRisk     bool      `json:"neg_risk,omitempty"`
	Expiry      time.Time `json:"expiry"`
}

// ErrorResponse is the error payload for API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		AutomationEnabled: true,
		Uptime:            time.Since(h.startedAt).Round(time.Second).String(),
	}

	if h.automation != nil {
		resp.AutomationEnabled = h.automation.Enabled()
		if report, ok := h.automation.LastReport(); ok {
			resp.LastStop = &report
		}
	}
	if h.markets != nil {
		resp.ActiveMarkets = len(h.markets.ListActiveMarkets(r.Context(), nil, nil))
	}
	if h.positions != nil {
		for _, p := range h.positions.All() {
			if p.Phase == types.PhaseOrdered && p.RemainingSize() > 0 {
				resp.OpenPositions++
			}
		}
	}
	for _, src := range h.strategies {
		resp.Strategies = append(resp.Strategies, src.Status())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *statusHandler) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.All()
	if positions == nil {
		positions = []types.Position{}
	}

	writeJSON(w, http.StatusOK, positions)
}

func (h *statusHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries := h.history.Recent(limit)
	if entries == nil {
		entries = []types.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *statusHandler) handleMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.ListActiveMarkets(r.Context(), nil, nil)

	out := make([]MarketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketResponse{
			ConditionID: m.ConditionID,
			Slug:        m.Slug,
			Symbol:      m.Symbol,
			Timeframe:   m.Timeframe,
			UpTokenID:   m.UpTokenID,
			DownTokenID: m.DownTokenID,
			PriceToBeat: m.PriceToBeat,
			NegRisk:     m.NegRisk,
			Expiry:      m.Expiry,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
