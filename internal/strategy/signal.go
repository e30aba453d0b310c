package strategy

import (
	"math"

	"github.com/mselser95/polymarket-updown/internal/pricefeed"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Signal is the per-symbol market reading an entry decision is based on:
// where the reference price sits relative to the price-to-beat and how
// far (delta, in quote-currency units).
type Signal struct {
	Symbol      string
	Reference   float64
	PriceToBeat float64
	Delta       float64
	Direction   types.Side
}

// ComputeSignal derives direction and absolute delta from the live
// reference price against the market's price-to-beat.
func ComputeSignal(symbol string, reference, priceToBeat float64) Signal {
	dir := types.SideUp
	if reference < priceToBeat {
		dir = types.SideDown
	}

	return Signal{
		Symbol:      symbol,
		Reference:   reference,
		PriceToBeat: priceToBeat,
		Delta:       math.Abs(reference - priceToBeat),
		Direction:   dir,
	}
}

// TrendConfirmed applies the directional-trend filter: the last n
// 1-minute closes must each move in the required direction, and the
// live reference price must confirm the final close rather than
// reverse it. closes are ordered oldest first.
func TrendConfirmed(closes []float64, live float64, dir types.Side, n int) bool {
	if n <= 0 {
		return true
	}
	if len(closes) < n+1 {
		return false
	}

	recent := closes[len(closes)-n-1:]
	for i := 1; i < len(recent); i++ {
		if dir == types.SideUp && recent[i] <= recent[i-1] {
			return false
		}
		if dir == types.SideDown && recent[i] >= recent[i-1] {
			return false
		}
	}

	last := recent[len(recent)-1]
	if dir == types.SideUp {
		return live >= last
	}

	return live <= last
}

// GuardScore rates the candle-derived risk of entering in the given
// direction. Each breached bound adds one: an oversized latest body
// relative to the recent average, an opposing wick out of proportion to
// the body, and a thin delta margin above the required threshold.
// candles are ordered oldest first; the last one is the most recent
// closed candle. Returns the score and the reasons that contributed.
func GuardScore(candles []pricefeed.Candle, dir types.Side, delta, required float64, cfg config.GuardConfig) (int, []string) {
	if !cfg.Enabled || len(candles) == 0 {
		return 0, nil
	}

	score := 0
	var reasons []string
	latest := candles[len(candles)-1]

	if cfg.BodyFactor > 0 && len(candles) > 1 {
		sum := 0.0
		for _, c := range candles[:len(candles)-1] {
			sum += c.Body()
		}
		avg := sum / float64(len(candles)-1)
		if avg > 0 && latest.Body() > avg*cfg.BodyFactor {
			score++
			reasons = append(reasons, "oversized_body")
		}
	}

	if cfg.WickRatioMax > 0 && latest.Body() > 0 {
		// An up entry is threatened by sellers rejecting the high; a
		// down entry by buyers defending the low.
		opposing := latest.UpperWick()
		if dir == types.SideDown {
			opposing = latest.LowerWick()
		}
		if opposing/latest.Body() > cfg.WickRatioMax {
			score++
			reasons = append(reasons, "opposing_wick")
		}
	}

	if cfg.MinMarginRatio > 0 && required > 0 {
		if delta < required*(1+cfg.MinMarginRatio) {
			score++
			reasons = append(reasons, "thin_margin")
		}
	}

	return score, reasons
}
