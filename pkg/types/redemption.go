package types

import "time"

// RedeemMethod selects the execution path for a redemption.
type RedeemMethod string

const (
	RedeemOnChain RedeemMethod = "onchain"
	RedeemRelayer RedeemMethod = "relayer"
)

// RedeemStatus is the reconciliation state of an in-flight redemption.
type RedeemStatus string

const (
	RedeemSubmitted RedeemStatus = "submitted"
	RedeemConfirmed RedeemStatus = "confirmed"
	RedeemFailed    RedeemStatus = "failed"
)

// Redemption tracks one redeemPositions submission for a market. At most
// one lives per conditionId; a newer submission supersedes the old one.
type Redemption struct {
	ConditionID string       `json:"condition_id"`
	Method      RedeemMethod `json:"method"`
	Status      RedeemStatus `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
	ResolvedAt  time.Time    `json:"resolved_at,omitempty"`
	TxReference string       `json:"tx_reference,omitempty"`
	PayoutUsd   float64      `json:"payout_usd"`
	Paid        bool         `json:"paid"`
	Error       string       `json:"error,omitempty"`
}

// Terminal reports whether reconciliation finished.
func (r *Redemption) Terminal() bool {
	return r.Status == RedeemConfirmed || r.Status == RedeemFailed
}

// StuckBy reports whether a submitted redemption has waited longer than
// timeout without reconciling.
func (r *Redemption) StuckBy(now time.Time, timeout time.Duration) bool {
	return r.Status == RedeemSubmitted && now.Sub(r.SubmittedAt) > timeout
}
