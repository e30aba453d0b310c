package wallet

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid config", cfg: &Config{RPCURL: "https://polygon-rpc.com", Logger: logger}},
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "empty rpc url", cfg: &Config{Logger: logger}, wantErr: true},
		{name: "nil logger", cfg: &Config{RPCURL: "https://polygon-rpc.com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && client.dataAPIURL != defaultDataAPIURL {
				t.Errorf("dataAPIURL = %s, want default", client.dataAPIURL)
			}
		})
	}
}

func TestRedeemablePositions(t *testing.T) {
	t.Parallel()

	rows := []types.DataAPIPosition{
		{Asset: "tok-up", ConditionID: "0xaaa", Size: 100, CurPrice: 1.0, Redeemable: true},
		{Asset: "tok-down", ConditionID: "0xbbb", Size: 50, CurPrice: 0.4},
		{Asset: "tok-dust", ConditionID: "0xccc", Size: 0, CurPrice: 1.0},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "user=0xfunding") {
			t.Errorf("query %q missing user parameter", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		RPCURL:     "https://polygon-rpc.com",
		DataAPIURL: server.URL,
		Logger:     zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got, err := client.RedeemablePositions(context.Background(), "0xfunding")
	if err != nil {
		t.Fatalf("RedeemablePositions() error = %v", err)
	}

	// Zero-size rows are dropped; winners and losers both survive.
	if len(got) != 2 {
		t.Fatalf("positions = %d, want 2", len(got))
	}
	if !got[0].Winning(0.999, 0.001) {
		t.Error("first position should be a winner")
	}
	if got[1].Winning(0.999, 0.001) {
		t.Error("second position should not be a winner")
	}
}

func TestRedeemablePositions_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		RPCURL:     "https://polygon-rpc.com",
		DataAPIURL: server.URL,
		Logger:     zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.RedeemablePositions(context.Background(), "0xfunding"); err == nil {
		t.Error("expected error on status 500")
	}
}

func TestRedeemablePositions_ContextCancellation(t *testing.T) {
	t.Parallel()

	client, err := NewClient(&Config{RPCURL: "https://polygon-rpc.com", Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.RedeemablePositions(ctx, "0xfunding"); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestBalances_FloatConversions(t *testing.T) {
	t.Parallel()

	b := &Balances{
		POL:        big.NewInt(2_500_000_000_000_000_000), // 2.5 POL
		USDCe:      big.NewInt(125_000_000),               // 125 USDC
		USDCNative: big.NewInt(50_000_000),                // 50 USDC
		Allowance:  big.NewInt(1_000_000_000),             // 1000 USDC
	}

	if got := b.POLFloat(); got != 2.5 {
		t.Errorf("POLFloat() = %f, want 2.5", got)
	}
	if got := b.USDCeFloat(); got != 125 {
		t.Errorf("USDCeFloat() = %f, want 125", got)
	}
	if got := b.USDCNativeFloat(); got != 50 {
		t.Errorf("USDCNativeFloat() = %f, want 50", got)
	}
	if got := b.AllowanceFloat(); got != 1000 {
		t.Errorf("AllowanceFloat() = %f, want 1000", got)
	}
}
