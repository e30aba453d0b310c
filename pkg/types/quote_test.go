package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBookMessage_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		checkFunc func(*testing.T, *BookMessage)
	}{
		{
			name: "valid_book_event",
			input: `{
				"event_type": "book",
				"asset_id": "token1",
				"market": "0xabc123",
				"timestamp": "1234567890000",
				"bids": [{"price": "0.48", "size": "100"}, {"price": "0.52", "size": "30"}],
				"asks": [{"price": "0.60", "size": "80"}, {"price": "0.53", "size": "25"}]
			}`,
			wantErr: false,
			checkFunc: func(t *testing.T, msg *BookMessage) {
				if msg.EventType != "book" {
					t.Errorf("EventType = %q, want %q", msg.EventType, "book")
				}
				if msg.AssetID != "token1" {
					t.Errorf("AssetID = %q, want %q", msg.AssetID, "token1")
				}
				if msg.Timestamp != 1234567890000 {
					t.Errorf("Timestamp = %d, want %d", msg.Timestamp, 1234567890000)
				}
				if len(msg.Bids) != 2 || len(msg.Asks) != 2 {
					t.Fatalf("levels = %d bids / %d asks, want 2/2", len(msg.Bids), len(msg.Asks))
				}
			},
		},
		{
			name: "no_timestamp",
			input: `{
				"event_type": "book",
				"asset_id": "token1",
				"market": "0xabc123"
			}`,
			wantErr: false,
			checkFunc: func(t *testing.T, msg *BookMessage) {
				if msg.Timestamp != 0 {
					t.Errorf("Timestamp = %d, want 0 (not provided)", msg.Timestamp)
				}
			},
		},
		{
			name:    "invalid_timestamp_format",
			input:   `{"event_type": "book", "timestamp": "not_a_number"}`,
			wantErr: true,
		},
		{
			name:    "invalid_json",
			input:   `{"event_type": "book", "bids": [INVALID}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg BookMessage
			err := json.Unmarshal([]byte(tt.input), &msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFunc != nil {
				tt.checkFunc(t, &msg)
			}
		})
	}
}

// TestPriceChangeMessage_RealWorldExample tests with actual CLOB API format from documentation
func TestPriceChangeMessage_RealWorldExample(t *testing.T) {
	// Example from https://docs.polymarket.com/developers/CLOB/websocket/market-channel
	realWorldMsg := `{
		"market": "0x5f65177b394277fd294cd75650044e32ba009a95022d88a0c1d565897d72f8f1",
		"price_changes": [
			{
				"asset_id": "71321045679252212594626385532706912750332728571942532289631379312455583992563",
				"price": "0.5",
				"size": "200",
				"side": "BUY",
				"hash": "56621a121a47ed9333273e21c83b660cff37ae50",
				"best_bid": "0.5",
				"best_ask": "1"
			},
			{
				"asset_id": "52114319501245915516055106046884209969926127482827954674443846427813813222426",
				"price": "0.5",
				"size": "200",
				"side": "SELL",
				"hash": "1895759e4df7a796bf4f1c5a5950b748306923e2",
				"best_bid": "0",
				"best_ask": "0.5"
			}
		],
		"timestamp": "1757908892351",
		"event_type": "price_change"
	}`

	var msg PriceChangeMessage
	err := json.Unmarshal([]byte(realWorldMsg), &msg)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if msg.EventType != "price_change" {
		t.Errorf("EventType = %q, want %q", msg.EventType, "price_change")
	}
	if msg.Timestamp != 1757908892351 {
		t.Errorf("Timestamp = %d, want %d", msg.Timestamp, 1757908892351)
	}
	if len(msg.PriceChanges) != 2 {
		t.Fatalf("len(PriceChanges) = %d, want 2", len(msg.PriceChanges))
	}

	pc1 := msg.PriceChanges[0]
	if pc1.BestBid != "0.5" || pc1.BestAsk != "1" {
		t.Errorf("PriceChanges[0] best bid/ask = %q/%q, want 0.5/1", pc1.BestBid, pc1.BestAsk)
	}
	pc2 := msg.PriceChanges[1]
	if pc2.BestBid != "0" || pc2.BestAsk != "0.5" {
		t.Errorf("PriceChanges[1] best bid/ask = %q/%q, want 0/0.5", pc2.BestBid, pc2.BestAsk)
	}
}

func TestBookResponse_ToQuote(t *testing.T) {
	tests := []struct {
		name     string
		book     BookResponse
		wantBid  float64
		wantAsk  float64
		wantBidS float64
		wantAskS float64
	}{
		{
			name: "best_levels_last",
			book: BookResponse{
				AssetID: "token1",
				Bids:    []PriceLevel{{Price: "0.40", Size: "500"}, {Price: "0.52", Size: "120"}},
				Asks:    []PriceLevel{{Price: "0.70", Size: "300"}, {Price: "0.54", Size: "80"}},
			},
			wantBid: 0.52, wantBidS: 120,
			wantAsk: 0.54, wantAskS: 80,
		},
		{
			name:    "empty_book",
			book:    BookResponse{AssetID: "token1"},
			wantBid: 0, wantAsk: 0,
		},
		{
			name: "one_sided_book",
			book: BookResponse{
				AssetID: "token1",
				Bids:    []PriceLevel{{Price: "0.97", Size: "10"}},
			},
			wantBid: 0.97, wantBidS: 10,
			wantAsk: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			q := tt.book.ToQuote(now)

			if q.BestBid != tt.wantBid || q.BestBidSize != tt.wantBidS {
				t.Errorf("bid = %v/%v, want %v/%v", q.BestBid, q.BestBidSize, tt.wantBid, tt.wantBidS)
			}
			if q.BestAsk != tt.wantAsk || q.BestAskSize != tt.wantAskS {
				t.Errorf("ask = %v/%v, want %v/%v", q.BestAsk, q.BestAskSize, tt.wantAsk, tt.wantAskS)
			}
			if !q.ObservedAt.Equal(now) {
				t.Errorf("ObservedAt = %v, want %v", q.ObservedAt, now)
			}
		})
	}
}

func TestQuote_StaleBy(t *testing.T) {
	now := time.Now()

	fresh := Quote{ObservedAt: now.Add(-2 * time.Second)}
	if fresh.StaleBy(now, 5*time.Second) {
		t.Error("quote observed 2s ago should not be stale at 5s ceiling")
	}

	old := Quote{ObservedAt: now.Add(-10 * time.Second)}
	if !old.StaleBy(now, 5*time.Second) {
		t.Error("quote observed 10s ago should be stale at 5s ceiling")
	}

	var zero Quote
	if !zero.StaleBy(now, 5*time.Second) {
		t.Error("zero-valued quote should always be stale")
	}
}
