package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side identifies one outcome of a binary Up/Down market.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

// Opposite returns the other outcome of the binary pair.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}

	return SideUp
}

// Market is one live Up/Down market resolved from the Gamma API.
// Immutable once built; dropped from the snapshot after expiry.
type Market struct {
	ConditionID string
	Slug        string
	Symbol      string // e.g. "BTC"
	Timeframe   string // e.g. "1h"
	UpTokenID   string
	DownTokenID string
	PriceToBeat float64
	NegRisk     bool
	Expiry      time.Time
}

// TokenID returns the instrument id for the given side.
func (m *Market) TokenID(side Side) string {
	if side == SideUp {
		return m.UpTokenID
	}

	return m.DownTokenID
}

// Expired reports whether the market's settlement window has passed.
func (m *Market) Expired(now time.Time) bool {
	return !m.Expiry.IsZero() && !now.Before(m.Expiry)
}

// PositionKey builds the logical key used by locks, the position tracker
// and the duplicate-order guard: one key per market+instrument.
func (m *Market) PositionKey(side Side) string {
	return m.ConditionID + ":" + m.TokenID(side)
}

// GammaMarket is the wire shape of a market row from the Gamma API.
// Outcomes and clobTokenIds arrive as JSON-encoded strings inside the
// JSON document, so unmarshaling flattens them into Tokens.
type GammaMarket struct {
	ID          string    `json:"id"`
	ConditionID string    `json:"conditionId"`
	Question    string    `json:"question"`
	Slug        string    `json:"slug"`
	Closed      bool      `json:"closed"`
	Active      bool      `json:"active"`
	NegRisk     bool      `json:"negRisk"`
	EndDate     time.Time `json:"endDate"`
	Outcomes    string    `json:"outcomes"`     // JSON string: "[\"Up\", \"Down\"]"
	ClobTokens  string    `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"
	Tokens      []Token   `json:"-"`
}

// Token pairs an outcome label with its CLOB token id.
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price,omitempty"`
}

// UnmarshalJSON populates Tokens from the nested outcomes/clobTokenIds strings.
func (g *GammaMarket) UnmarshalJSON(data []byte) error {
	type Alias GammaMarket
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(g),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if g.Outcomes != "" && g.ClobTokens != "" {
		var outcomes []string
		var tokenIDs []string

		if err := json.Unmarshal([]byte(g.Outcomes), &outcomes); err == nil {
			if err := json.Unmarshal([]byte(g.ClobTokens), &tokenIDs); err == nil {
				g.Tokens = make([]Token, 0, len(outcomes))
				for i, outcome := range outcomes {
					if i < len(tokenIDs) {
						g.Tokens = append(g.Tokens, Token{
							TokenID: tokenIDs[i],
							Outcome: outcome,
						})
					}
				}
			}
		}
	}

	return nil
}

// TokenByOutcome returns the token whose label matches outcome,
// case-insensitive on the first letter (Up/up, Down/down).
func (g *GammaMarket) TokenByOutcome(outcome string) *Token {
	for i := range g.Tokens {
		if equalFoldASCII(g.Tokens[i].Outcome, outcome) {
			return &g.Tokens[i]
		}
	}

	return nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}

	return true
}

// ToMarket converts a Gamma row into the snapshot's Market shape.
// The caller supplies symbol/timeframe since the slug encodes them.
func (g *GammaMarket) ToMarket(symbol, timeframe string, priceToBeat float64) (*Market, error) {
	up := g.TokenByOutcome("Up")
	down := g.TokenByOutcome("Down")
	if up == nil || down == nil {
		return nil, fmt.Errorf("market %s missing up/down tokens (outcomes=%q)", g.Slug, g.Outcomes)
	}

	return &Market{
		ConditionID: g.ConditionID,
		Slug:        g.Slug,
		Symbol:      symbol,
		Timeframe:   timeframe,
		UpTokenID:   up.TokenID,
		DownTokenID: down.TokenID,
		PriceToBeat: priceToBeat,
		NegRisk:     g.NegRisk,
		Expiry:      g.EndDate.UTC(),
	}, nil
}
