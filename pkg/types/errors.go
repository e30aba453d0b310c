package types

import (
	"errors"
	"fmt"
	"time"
)

// OrderError represents an error that occurred during order placement or
// execution, carrying the venue code alongside a readable summary.
type OrderError struct {
	Code    string // API error code or internal error code
	Message string // Human-readable error message
	OrderID string // Order ID if available
	Side    string // BUY or SELL
}

func (e *OrderError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failed (ID: %s): %s (%s)", e.Side, e.OrderID, e.Message, e.Code)
	}

	return fmt.Sprintf("%s order failed: %s (%s)", e.Side, e.Message, e.Code)
}

// Known Polymarket CLOB API error codes
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrInvalidMinSize     = "INVALID_ORDER_MIN_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrUnmatched          = "UNMATCHED"
	ErrUnknownStatus      = "UNKNOWN_STATUS"
)

// SkipError marks a business-rule skip: logged, never retried within the
// tick that produced it.
type SkipError struct {
	Reason string // delta_too_small, trend_filter, below_min_prob, ...
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return "skipped: " + e.Reason
	}

	return fmt.Sprintf("skipped: %s (%s)", e.Reason, e.Detail)
}

// Skip reasons produced by the entry decision engine.
const (
	SkipPositionExists = "position_exists"
	SkipCooldown       = "cooldown"
	SkipNoMarket       = "no_market"
	SkipOutsideWindow  = "outside_window"
	SkipEmptyBook      = "empty_book"
	SkipStaleQuote     = "stale_quote"
	SkipBelowMinProb   = "below_min_prob"
	SkipTrendFilter    = "trend_filter"
	SkipDeltaTooSmall  = "delta_too_small"
	SkipGuardScore     = "guard_score"
	SkipLockHeld       = "lock_held"
	SkipSideFlip       = "side_flip"
	SkipDuplicate      = "duplicate"
)

// QuotaError marks a venue quota rejection. ResetAt is the parsed reset
// time when the response carried one, zero otherwise.
type QuotaError struct {
	Message string
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	if e.ResetAt.IsZero() {
		return "quota exceeded: " + e.Message
	}

	return fmt.Sprintf("quota exceeded until %s: %s", e.ResetAt.Format(time.RFC3339), e.Message)
}

// AuthError marks an authorization rejection of the active credential.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "authorization failed: " + e.Message }

var (
	// ErrNoCredential is returned when every credential in the pool is
	// exhausted.
	ErrNoCredential = errors.New("no eligible credential")
	// ErrLockHeld is returned when a position key is already locked.
	ErrLockHeld = errors.New("lock held")
	// ErrStaleQuote is returned when a decision needs a quote newer than
	// the staleness ceiling.
	ErrStaleQuote = errors.New("quote stale")
	// ErrAutomationDisabled is returned once the watchdog has stopped
	// the engine.
	ErrAutomationDisabled = errors.New("automation disabled")
)

// IsSkip reports whether err is a business-rule skip and extracts the
// reason.
func IsSkip(err error) (string, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}

	return "", false
}

// IsQuota reports whether err is a venue quota rejection.
func IsQuota(err error) bool {
	var qe *QuotaError

	return errors.As(err, &qe)
}

// IsAuth reports whether err is an authorization rejection.
func IsAuth(err error) bool {
	var ae *AuthError

	return errors.As(err, &ae)
}

// Summary renders err as a short single-line human summary, keeping the
// raw message available through the error chain.
func Summary(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsQuota(err):
		return "venue quota exhausted"
	case IsAuth(err):
		return "credential rejected"
	default:
		if reason, ok := IsSkip(err); ok {
			return "skipped: " + reason
		}
		var oe *OrderError
		if errors.As(err, &oe) {
			return "order rejected: " + oe.Code
		}

		return err.Error()
	}
}
