package types

import "time"

// Phase is the lifecycle state of a tracked position. Transitions are
// monotonic in the order declared below, except that failed positions
// become retryable again after a cooldown.
type Phase string

const (
	PhaseOrdered         Phase = "ordered"
	PhaseExpired         Phase = "expired"
	PhaseRedeemSubmitted Phase = "redeem_submitted"
	PhaseRedeemed        Phase = "redeemed"
	PhaseRedeemFailed    Phase = "redeem_failed"
	PhaseFailed          Phase = "failed"
)

var phaseRank = map[Phase]int{
	PhaseOrdered:         0,
	PhaseExpired:         1,
	PhaseRedeemSubmitted: 2,
	PhaseRedeemed:        3,
	PhaseRedeemFailed:    3,
	PhaseFailed:          4,
}

// CanTransition reports whether moving from p to next respects the
// monotonic ordering.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseFailed {
		// Any live phase may fail, but settled positions stay settled.
		return !p.Terminal() && p != PhaseFailed
	}

	return phaseRank[next] > phaseRank[p]
}

// Terminal reports whether no further automatic transitions apply.
func (p Phase) Terminal() bool {
	return p == PhaseRedeemed || p == PhaseRedeemFailed
}

// Cut identifies how far down the stop-loss schedule a position has moved.
type Cut string

const (
	CutNone Cut = "none"
	Cut1    Cut = "cut1"
	Cut2    Cut = "cut2"
)

// Position is one tracked venue position created on successful placement.
type Position struct {
	Key          string    `json:"key"` // conditionId:instrumentId
	ConditionID  string    `json:"condition_id"`
	InstrumentID string    `json:"instrument_id"`
	Strategy     string    `json:"strategy"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	Side         Side      `json:"side"`
	EntryPrice   float64   `json:"entry_price"`
	TotalSize    float64   `json:"total_size"`
	SoldSize     float64   `json:"sold_size"`
	CutsApplied  Cut       `json:"cuts_applied"`
	NegRisk      bool      `json:"neg_risk,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Phase        Phase     `json:"phase"`
	OrderedAt    time.Time `json:"ordered_at"`
	FailedAt     time.Time `json:"failed_at,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
}

// RemainingSize is inventory not yet sold by the stop-loss engine.
func (p *Position) RemainingSize() float64 {
	r := p.TotalSize - p.SoldSize
	if r < 0 {
		return 0
	}

	return r
}

// SoldPct is the cumulative sold fraction of the original size, 0..1.
func (p *Position) SoldPct() float64 {
	if p.TotalSize <= 0 {
		return 0
	}

	return p.SoldSize / p.TotalSize
}

// SecondsToExpiry is the remaining settlement window at now, negative
// once expired.
func (p *Position) SecondsToExpiry(now time.Time) float64 {
	return p.Expiry.Sub(now).Seconds()
}

// Expired reports whether the position's market window has closed.
func (p *Position) Expired(now time.Time) bool {
	return !p.Expiry.IsZero() && !now.Before(p.Expiry)
}
