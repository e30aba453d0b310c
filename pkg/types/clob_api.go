package types

// OrderSubmissionResponse represents the response from POST /order.
// This is different from OrderQueryResponse (GET /order).
// Based on official Polymarket CLOB API documentation.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`      // Server-side success indicator
	ErrorMsg     string   `json:"errorMsg"`     // Error message if success=false
	OrderID      string   `json:"orderId"`      // Note: lowercase 'd' per API spec
	OrderHashes  []string `json:"orderHashes"`  // Settlement transaction hashes
	Status       string   `json:"status"`       // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"` // Amount being taken (as string)
	MakingAmount string   `json:"makingAmount"` // Amount being made (as string)
}

// SignedOrderJSON represents a signed order in the format expected by the CLOB API.
// Fields match the EIP-712 order structure after signing.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`          // Integer per API spec (not string)
	Maker         string `json:"maker"`         // Funder address
	Signer        string `json:"signer"`        // Signing address (EOA)
	Taker         string `json:"taker"`         // Operator address (0x0000... for public)
	TokenID       string `json:"tokenId"`       // ERC1155 token ID
	MakerAmount   string `json:"makerAmount"`   // Raw amount (6 decimals for USDC)
	TakerAmount   string `json:"takerAmount"`   // Raw token amount
	Side          string `json:"side"`          // "BUY" or "SELL"
	Expiration    string `json:"expiration"`    // Unix timestamp (0 for no expiry)
	Nonce         string `json:"nonce"`         // Nonce value
	FeeRateBps    string `json:"feeRateBps"`    // Fee rate in basis points
	SignatureType int    `json:"signatureType"` // Integer: 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Signature     string `json:"signature"`     // Hex-encoded signature with 0x prefix
}

// OrderSubmissionRequest represents a single order submission wrapped with metadata.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`     // Signed order data
	Owner     string          `json:"owner"`     // API key (not maker address!)
	OrderType string          `json:"orderType"` // GTC, FOK, GTD, or FAK
}

// OrderQueryResponse represents the response from GET /order.
// This is DIFFERENT from OrderSubmissionResponse (POST /order).
type OrderQueryResponse struct {
	OrderID      string  `json:"orderID"` // Capital D in GET endpoint
	Status       string  `json:"status"`
	TokenID      string  `json:"asset_id"`
	Price        float64 `json:"price,string"`
	Size         float64 `json:"original_size,string"`
	SizeFilled   float64 `json:"size_matched,string"`
	Side         string  `json:"side"` // "BUY" or "SELL"
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	OrderType    string  `json:"type"` // GTC, FOK, GTD, FAK
	MarketID     string  `json:"market"`
	Outcome      string  `json:"outcome"`
	Owner        string  `json:"owner"`
	MakerAddress string  `json:"maker_address"`
	Message      string  `json:"message,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Remaining reports the unfilled size of a queried order.
func (r *OrderQueryResponse) Remaining() float64 {
	rem := r.Size - r.SizeFilled
	if rem < 0 {
		return 0
	}

	return rem
}

// DataAPIPosition is one wallet position row from the Data API
// /positions endpoint, used for redeemable detection.
type DataAPIPosition struct {
	Asset       string  `json:"asset"` // CLOB token id
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CurPrice    float64 `json:"curPrice"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
	Redeemable  bool    `json:"redeemable"`
	NegRisk     bool    `json:"negativeRisk"`
}

// Winning reports whether the position resolved (or is resolving) in
// the holder's favor: price pinned at 1 with real size behind it.
func (p *DataAPIPosition) Winning(winnerThreshold, dustSize float64) bool {
	return p.CurPrice >= winnerThreshold && p.Size > dustSize
}
