package stoploss

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// attempt is one rung of the sell ladder: a price derived from the best
// bid and the time-in-force to submit it with. The ladder runs in order
// and stops at the first fill.
type attempt struct {
	name     string
	price    float64
	tif      execution.TimeInForce
	fallback bool // resting limit, watched for cancel/replace
}

// ladder builds the ordered attempt list for one sell: marketable FOK
// at the bid, one tick below, two ticks below, then a resting GTC at
// the bid as the fallback.
func ladder(bid, tick float64) []attempt {
	rungs := []attempt{
		{name: "bid_fok", price: bid, tif: execution.TIFFillOrKill},
	}
	if p := bid - tick; p > 0 {
		rungs = append(rungs, attempt{name: "bid_minus_1_fok", price: p, tif: execution.TIFFillOrKill})
	}
	if p := bid - 2*tick; p > 0 {
		rungs = append(rungs, attempt{name: "bid_minus_2_fok", price: p, tif: execution.TIFFillOrKill})
	}
	rungs = append(rungs, attempt{name: "resting_bid_gtc", price: bid, tif: execution.TIFGoodTillCancelled, fallback: true})

	return rungs
}

// fill is the outcome of a completed (non-resting) attempt.
type fill struct {
	orderID string
	price   float64
	size    float64
}

// RestingOrder is a GTC fallback sitting on the book, watched for
// bid moves and age.
type RestingOrder struct {
	OrderID  string    `json:"order_id"`
	Key      string    `json:"key"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	Cut      types.Cut `json:"cut"`
	PlacedAt time.Time `json:"placed_at"`
}

// aged reports whether the resting order sat past the ceiling.
func (r *RestingOrder) aged(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.PlacedAt) > maxAge
}

// moved reports whether the best bid drifted at least one tick from
// the resting price.
func (r *RestingOrder) moved(bid, tick float64) bool {
	diff := bid - r.Price
	if diff < 0 {
		diff = -diff
	}

	return diff >= tick-1e-12
}

// runLadder walks the attempts for one sell. Returns the fill when a
// marketable rung executed, the resting order when the fallback was
// placed, or an error when every rung failed.
func (e *Engine) runLadder(ctx context.Context, pos *types.Position, size float64, cut types.Cut, attempts []attempt) (*fill, *RestingOrder, error) {
	var lastErr error

	for _, a := range attempts {
		orderID, err := e.exec.SubmitSell(ctx, pos.InstrumentID, size, a.price, a.tif, pos.NegRisk)
		if err != nil {
			lastErr = err
			AttemptsTotal.WithLabelValues(a.name, "failed").Inc()
			if !retryable(err) {
				return nil, nil, fmt.Errorf("sell attempt %s: %w", a.name, err)
			}

			continue
		}

		AttemptsTotal.WithLabelValues(a.name, "ok").Inc()

		if a.fallback {
			return nil, &RestingOrder{
				OrderID:  orderID,
				Key:      pos.Key,
				Price:    a.price,
				Size:     size,
				Cut:      cut,
				PlacedAt: e.now(),
			}, nil
		}

		return &fill{orderID: orderID, price: a.price, size: e.filledSize(ctx, orderID, size)}, nil, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts executed")
	}

	return nil, nil, fmt.Errorf("sell ladder exhausted: %w", lastErr)
}

// retryable reports whether the next rung should run after err. An
// unfilled FOK or an unmatched order moves down the ladder; balance,
// auth and quota problems abort it.
func retryable(err error) bool {
	if types.IsQuota(err) || types.IsAuth(err) {
		return false
	}

	var oe *types.OrderError
	if errors.As(err, &oe) {
		switch oe.Code {
		case types.ErrFOKNotFilled, types.ErrUnmatched, types.ErrInvalidMinTickSize:
			return true
		}

		return false
	}

	return false
}

// filledSize queries the matched size of a submitted order, tolerating
// partial fills. Falls back to the requested size when the venue does
// not answer.
func (e *Engine) filledSize(ctx context.Context, orderID string, requested float64) float64 {
	status, err := e.exec.OrderStatus(ctx, orderID)
	if err != nil || status == nil {
		return requested
	}
	if status.SizeFilled <= 0 {
		return requested
	}
	if status.SizeFilled > requested {
		return requested
	}

	return status.SizeFilled
}
