package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// Quote is the latest best bid/ask observation for one instrument.
// Overwritten on each refresh.
type Quote struct {
	InstrumentID string
	BestBid      float64
	BestBidSize  float64
	BestAsk      float64
	BestAskSize  float64
	ObservedAt   time.Time
}

// HasBid reports whether the book had any bid at observation time.
func (q *Quote) HasBid() bool { return q.BestBid > 0 && q.BestBidSize > 0 }

// HasAsk reports whether the book had any ask at observation time.
func (q *Quote) HasAsk() bool { return q.BestAsk > 0 && q.BestAskSize > 0 }

// StaleBy reports whether the observation is older than maxAge at now.
func (q *Quote) StaleBy(now time.Time, maxAge time.Duration) bool {
	return q.ObservedAt.IsZero() || now.Sub(q.ObservedAt) > maxAge
}

// PriceLevel is a single price level on the CLOB wire, prices and sizes
// as decimal strings.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Float parses the level into numeric price/size, zero on parse failure.
func (l PriceLevel) Float() (price, size float64) {
	price, _ = strconv.ParseFloat(l.Price, 64)
	size, _ = strconv.ParseFloat(l.Size, 64)

	return price, size
}

// BookMessage is one message from the CLOB market WebSocket channel.
type BookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON handles the string-encoded timestamp field.
func (b *BookMessage) UnmarshalJSON(data []byte) error {
	type Alias BookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		b.Timestamp = timestamp
	}

	return nil
}

// PriceChange is one per-asset change inside a price_change event.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price,omitempty"`
	Size    string `json:"size,omitempty"`
	Side    string `json:"side,omitempty"`
	Hash    string `json:"hash,omitempty"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// PriceChangeMessage is a price_change event from the market channel,
// batching top-of-book moves for several assets.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    int64         `json:"-"` // Parsed from string via UnmarshalJSON
	PriceChanges []PriceChange `json:"price_changes"`
}

// UnmarshalJSON handles the string-encoded timestamp field.
func (p *PriceChangeMessage) UnmarshalJSON(data []byte) error {
	type Alias PriceChangeMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		p.Timestamp = timestamp
	}

	return nil
}

// BookResponse is one book returned by the CLOB REST /books endpoint.
type BookResponse struct {
	AssetID string       `json:"asset_id"`
	Market  string       `json:"market"`
	Bids    []PriceLevel `json:"bids"`
	Asks    []PriceLevel `json:"asks"`
}

// ToQuote reduces a full book into its top-of-book quote. CLOB books
// list bids ascending and asks descending, so best levels sit last.
func (r *BookResponse) ToQuote(observedAt time.Time) Quote {
	q := Quote{InstrumentID: r.AssetID, ObservedAt: observedAt}
	if n := len(r.Bids); n > 0 {
		q.BestBid, q.BestBidSize = r.Bids[n-1].Float()
	}
	if n := len(r.Asks); n > 0 {
		q.BestAsk, q.BestAskSize = r.Asks[n-1].Float()
	}

	return q
}
