package cmd

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/config"
)

// Well-known development key, never funded.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run":              false,
		"status":           false,
		"positions":        false,
		"history":          false,
		"markets":          false,
		"quotes":           false,
		"balance":          false,
		"approve":          false,
		"derive-api-creds": false,
		"credentials":      false,
		"redeem":           false,
		"force-entry":      false,
		"report":           false,
	}

	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestCommandsHaveRunE(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		if c.RunE == nil {
			t.Errorf("command %q has no RunE", c.Name())
		}
	}
}

func TestForceEntryFlags(t *testing.T) {
	for _, name := range []string{"strategy", "symbol"} {
		if forceEntryCmd.Flags().Lookup(name) == nil {
			t.Errorf("force-entry flag %q not defined", name)
		}
	}
}

func TestFundingWallet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{
			name: "funder address wins",
			cfg: config.Config{
				FunderAddress: "0x1111111111111111111111111111111111111111",
				PrivateKey:    testPrivateKey,
			},
			want: "0x1111111111111111111111111111111111111111",
		},
		{
			name: "falls back to signing EOA",
			cfg:  config.Config{PrivateKey: testPrivateKey},
			want: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
		{
			name: "0x prefix accepted",
			cfg:  config.Config{PrivateKey: "0x" + testPrivateKey},
			want: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
		{
			name:    "nothing configured",
			cfg:     config.Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := fundingWallet(&tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("fundingWallet() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("fundingWallet() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("fundingWallet() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	t.Parallel()

	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(short) = %q, want unchanged", got)
	}

	long := "0x1234567890abcdef1234567890abcdef1234567890abcdef"
	got := shortID(long)
	if got == long {
		t.Error("shortID(long) should truncate")
	}
	if got[:8] != long[:8] {
		t.Errorf("shortID prefix = %q, want %q", got[:8], long[:8])
	}
}

func TestSeedCredential(t *testing.T) {
	t.Parallel()

	if creds := seedCredential(&config.Config{}); creds != nil {
		t.Errorf("seedCredential(empty) = %v, want nil", creds)
	}

	cfg := config.Config{
		PolymarketAPIKey:     "key",
		PolymarketSecret:     "secret",
		PolymarketPassphrase: "phrase",
	}
	creds := seedCredential(&cfg)
	if len(creds) != 1 {
		t.Fatalf("seedCredential() returned %d credentials, want 1", len(creds))
	}
	if creds[0].ID != "env" || creds[0].APIKey != "key" {
		t.Errorf("seedCredential() = %+v, want env-seeded credential", creds[0])
	}
	if creds[0].Exhausted(time.Now()) {
		t.Error("fresh credential reports exhausted")
	}
}
