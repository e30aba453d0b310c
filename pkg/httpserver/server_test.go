package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/internal/strategy"
	"github.com/mselser95/polymarket-updown/internal/watchdog"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

type fakePositions struct {
	positions []types.Position
}

func (f *fakePositions) All() []types.Position { return f.positions }

type fakeHistory struct {
	entries  []types.HistoryEntry
	gotLimit int
}

func (f *fakeHistory) Recent(limit int) []types.HistoryEntry {
	f.gotLimit = limit
	if limit < len(f.entries) {
		return f.entries[:limit]
	}
	return f.entries
}

type fakeMarkets struct {
	markets []types.Market
}

func (f *fakeMarkets) ListActiveMarkets(ctx context.Context, symbols, timeframes []string) []types.Market {
	return f.markets
}

type fakeAutomation struct {
	enabled bool
	report  *watchdog.Report
}

func (f *fakeAutomation) Enabled() bool { return f.enabled }

func (f *fakeAutomation) LastReport() (watchdog.Report, bool) {
	if f.report == nil {
		return watchdog.Report{}, false
	}
	return *f.report, true
}

type fakeStrategy struct {
	status strategy.Status
}

func (f *fakeStrategy) Status() strategy.Status { return f.status }

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	if cfg.Port == "" {
		cfg.Port = "0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = healthprobe.New()
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing port", cfg: Config{Logger: logger, HealthChecker: healthprobe.New()}},
		{name: "missing logger", cfg: Config{Port: "8080", HealthChecker: healthprobe.New()}},
		{name: "missing health checker", cfg: Config{Port: "8080", Logger: logger}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(&tt.cfg); err == nil {
				t.Fatal("New() expected error, got nil")
			}
		})
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	t.Parallel()

	hc := healthprobe.New()
	srv := newTestServer(t, &Config{HealthChecker: hc})

	if rec := get(t, srv, "/health"); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
	if rec := get(t, srv, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready before ready = %d, want 503", rec.Code)
	}

	hc.SetReady(true)
	if rec := get(t, srv, "/ready"); rec.Code != http.StatusOK {
		t.Errorf("GET /ready after ready = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &Config{})

	if rec := get(t, srv, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	report := &watchdog.Report{Reason: watchdog.StopDataError, Detail: "stale quotes"}
	srv := newTestServer(t, &Config{
		Positions: &fakePositions{positions: []types.Position{
			{Key: "0xa:tok-up", Phase: types.PhaseOrdered, TotalSize: 100},
			{Key: "0xb:tok-up", Phase: types.PhaseOrdered, TotalSize: 100, SoldSize: 100},
			{Key: "0xc:tok-up", Phase: types.PhaseRedeemed, TotalSize: 50},
		}},
		Markets:    &fakeMarkets{markets: []types.Market{{ConditionID: "0xa"}, {ConditionID: "0xb"}}},
		Automation: &fakeAutomation{enabled: false, report: report},
		Strategies: []StrategySource{&fakeStrategy{status: strategy.Status{
			Name:    "updown-1h",
			Enabled: true,
			Symbols: []string{"BTC"},
			Adaptive: map[string]strategy.AdaptiveState{
				"BTC": {OverrideDelta: 1300, NoBuyStreak: 2},
			},
		}}},
	})

	rec := get(t, srv, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.AutomationEnabled {
		t.Error("automation_enabled = true, want false")
	}
	if resp.ActiveMarkets != 2 {
		t.Errorf("active_markets = %d, want 2", resp.ActiveMarkets)
	}
	// Only the ordered position with remaining inventory counts.
	if resp.OpenPositions != 1 {
		t.Errorf("open_positions = %d, want 1", resp.OpenPositions)
	}
	if resp.LastStop == nil || resp.LastStop.Reason != watchdog.StopDataError {
		t.Errorf("last_stop = %+v, want data_error report", resp.LastStop)
	}
	if len(resp.Strategies) != 1 || resp.Strategies[0].Name != "updown-1h" {
		t.Fatalf("strategies = %+v, want one updown-1h entry", resp.Strategies)
	}
	if resp.Strategies[0].Adaptive["BTC"].OverrideDelta != 1300 {
		t.Errorf("adaptive override = %+v, want 1300", resp.Strategies[0].Adaptive["BTC"])
	}
}

func TestPositionsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &Config{
		Positions: &fakePositions{positions: []types.Position{
			{Key: "0xa:tok-up", ConditionID: "0xa", Side: types.SideUp, EntryPrice: 0.55},
		}},
	})

	rec := get(t, srv, "/api/positions")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/positions = %d, want 200", rec.Code)
	}

	var positions []types.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &positions); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(positions) != 1 || positions[0].Key != "0xa:tok-up" {
		t.Errorf("positions = %+v, want one entry 0xa:tok-up", positions)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{entries: []types.HistoryEntry{
		{ID: "1", Action: types.ActionEntry, Outcome: "ok", At: time.Now()},
		{ID: "2", Action: types.ActionStopSell, Outcome: "failed", At: time.Now()},
	}}
	srv := newTestServer(t, &Config{History: hist})

	rec := get(t, srv, "/api/history?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/history = %d, want 200", rec.Code)
	}
	if hist.gotLimit != 1 {
		t.Errorf("limit passed = %d, want 1", hist.gotLimit)
	}

	var entries []types.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "1" {
		t.Errorf("entries = %+v, want single entry 1", entries)
	}

	if rec := get(t, srv, "/api/history?limit=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /api/history?limit=bogus = %d, want 400", rec.Code)
	}
}

func TestMarketsEndpoint(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(time.Hour).UTC()
	srv := newTestServer(t, &Config{
		Markets: &fakeMarkets{markets: []types.Market{{
			ConditionID: "0xa",
			Slug:        "bitcoin-up-or-down-august-31-3pm-et",
			Symbol:      "BTC",
			Timeframe:   "1h",
			UpTokenID:   "tok-up",
			DownTokenID: "tok-down",
			Expiry:      expiry,
		}}},
	})

	rec := get(t, srv, "/api/markets")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/markets = %d, want 200", rec.Code)
	}

	var markets []MarketResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &markets); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("markets = %d entries, want 1", len(markets))
	}
	if markets[0].Symbol != "BTC" || markets[0].UpTokenID != "tok-up" {
		t.Errorf("market = %+v, want BTC with tok-up", markets[0])
	}
}

func TestUnregisteredEndpointsReturn404(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &Config{})

	for _, path := range []string{"/api/positions", "/api/history", "/api/markets"} {
		if rec := get(t, srv, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s without source = %d, want 404", path, rec.Code)
		}
	}
}
