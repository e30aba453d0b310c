package types

import "time"

// HistoryAction classifies an entry in the bounded action history.
type HistoryAction string

const (
	ActionEntry HistoryAction = "entry"
	// ActionSplitLeg records an accumulation leg added to an already
	// open position. Kept distinct from ActionEntry so multi-leg
	// entries do not read as duplicate orders.
	ActionSplitLeg      HistoryAction = "split_leg"
	ActionEntrySkip     HistoryAction = "entry_skip"
	ActionStopSell      HistoryAction = "stop_sell"
	ActionCancelReplace HistoryAction = "cancel_replace"
	ActionRedeem        HistoryAction = "redeem"
	ActionWatchdogStop  HistoryAction = "watchdog_stop"
)

// HistoryEntry is one recorded engine action, newest kept first. The
// bounded history doubles as the duplicate-entry guard, so entries for
// successful placements must carry the position key.
type HistoryEntry struct {
	ID          string        `json:"id"`
	At          time.Time     `json:"at"`
	Strategy    string        `json:"strategy"`
	Symbol      string        `json:"symbol"`
	Action      HistoryAction `json:"action"`
	PositionKey string        `json:"position_key,omitempty"`
	ConditionID string        `json:"condition_id,omitempty"`
	OrderID     string        `json:"order_id,omitempty"`
	Outcome     string        `json:"outcome"` // ok, failed, skipped:<reason>
	Detail      string        `json:"detail,omitempty"`
	Price       float64       `json:"price,omitempty"`
	Size        float64       `json:"size,omitempty"`
}

// Succeeded reports whether the recorded action completed.
func (h *HistoryEntry) Succeeded() bool { return h.Outcome == "ok" }
