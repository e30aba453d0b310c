package types

import (
	"testing"
	"time"
)

func TestPhase_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{"ordered_to_expired", PhaseOrdered, PhaseExpired, true},
		{"expired_to_redeem_submitted", PhaseExpired, PhaseRedeemSubmitted, true},
		{"redeem_submitted_to_redeemed", PhaseRedeemSubmitted, PhaseRedeemed, true},
		{"redeem_submitted_to_redeem_failed", PhaseRedeemSubmitted, PhaseRedeemFailed, true},
		{"redeemed_back_to_ordered", PhaseRedeemed, PhaseOrdered, false},
		{"expired_back_to_ordered", PhaseExpired, PhaseOrdered, false},
		{"redeemed_to_redeem_failed", PhaseRedeemed, PhaseRedeemFailed, false},
		{"ordered_to_failed", PhaseOrdered, PhaseFailed, true},
		{"redeem_submitted_to_failed", PhaseRedeemSubmitted, PhaseFailed, true},
		{"redeemed_to_failed", PhaseRedeemed, PhaseFailed, false},
		{"redeem_failed_to_failed", PhaseRedeemFailed, PhaseFailed, false},
		{"failed_to_failed", PhaseFailed, PhaseFailed, false},
		{"same_phase", PhaseExpired, PhaseExpired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPhase_Terminal(t *testing.T) {
	for phase, want := range map[Phase]bool{
		PhaseOrdered:         false,
		PhaseExpired:         false,
		PhaseRedeemSubmitted: false,
		PhaseRedeemed:        true,
		PhaseRedeemFailed:    true,
		PhaseFailed:          false,
	} {
		if got := phase.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", phase, got, want)
		}
	}
}

func TestPosition_Accounting(t *testing.T) {
	p := Position{
		EntryPrice: 0.80,
		TotalSize:  100,
		SoldSize:   50,
	}

	if got := p.RemainingSize(); got != 50 {
		t.Errorf("RemainingSize() = %v, want 50", got)
	}
	if got := p.SoldPct(); got != 0.5 {
		t.Errorf("SoldPct() = %v, want 0.5", got)
	}

	// Oversold never reports negative inventory.
	p.SoldSize = 120
	if got := p.RemainingSize(); got != 0 {
		t.Errorf("RemainingSize() with oversell = %v, want 0", got)
	}

	// Zero-size positions report zero sold fraction.
	empty := Position{}
	if got := empty.SoldPct(); got != 0 {
		t.Errorf("SoldPct() on empty position = %v, want 0", got)
	}
}

func TestPosition_SecondsToExpiry(t *testing.T) {
	now := time.Now()
	p := Position{Expiry: now.Add(90 * time.Second)}

	got := p.SecondsToExpiry(now)
	if got < 89.9 || got > 90.1 {
		t.Errorf("SecondsToExpiry() = %v, want ~90", got)
	}

	past := Position{Expiry: now.Add(-time.Minute)}
	if past.SecondsToExpiry(now) >= 0 {
		t.Error("expired position should report negative seconds to expiry")
	}
}
