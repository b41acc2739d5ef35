package parser

import (
	"github.com/shopspring/decimal"
)

// TokenAmount is one leg of a decoded event. RawAmount is the integer amount
// string in base units; Decimals is the token's declared precision. UIAmount
// is the provider's pre-scaled float and is only used when no raw amount is
// present.
type TokenAmount struct {
	Mint      string  `json:"mint"`
	RawAmount string  `json:"amount"`
	Decimals  int32   `json:"decimals"`
	UIAmount  float64 `json:"uiAmount"`
	Owner     string  `json:"owner,omitempty"`
}

// Decimal converts the leg to a fixed-point amount using the token's declared
// precision. Returns false when neither a raw amount nor a UI amount is usable.
func (a *TokenAmount) Decimal() (decimal.Decimal, bool) {
	if a == nil {
		return decimal.Zero, false
	}
	if a.RawAmount != "" {
		raw, err := decimal.NewFromString(a.RawAmount)
		if err != nil {
			return decimal.Zero, false
		}
		return raw.Shift(-a.Decimals), true
	}
	if a.UIAmount != 0 {
		return decimal.NewFromFloat(a.UIAmount), true
	}
	return decimal.Zero, false
}

// RawEvent is a decoded on-chain event as delivered by the history and live
// stream providers, before protocol normalization.
type RawEvent struct {
	TxSignature string `json:"txSignature"`
	Slot        uint64 `json:"slot"`
	// BlockTime is the on-chain timestamp in unix seconds.
	BlockTime   int64        `json:"blockTime"`
	DecoderType string       `json:"decoderType"`
	EventType   string       `json:"eventType"`
	ProgramID   string       `json:"programId"`
	Mint        string       `json:"mint"`
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	FeePayer    string       `json:"feePayer"`
	Pool        string       `json:"pool"`
	TokenIn  *TokenAmount `json:"tokenIn,omitempty"`
	TokenOut *TokenAmount `json:"tokenOut,omitempty"`
	Accounts []string     `json:"accounts,omitempty"`
	// Amount is the event-level integer amount string in base units of Mint,
	// scaled by Decimals; UIAmount is the provider's pre-scaled float and is
	// only used when no raw amount is present.
	Amount   string  `json:"amount"`
	Decimals int32   `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

// InvolvesWallet reports whether the wallet participates in the event.
func (e *RawEvent) InvolvesWallet(wallet string) bool {
	if e.Source == wallet || e.Destination == wallet || e.FeePayer == wallet {
		return true
	}
	if e.TokenIn != nil && e.TokenIn.Owner == wallet {
		return true
	}
	if e.TokenOut != nil && e.TokenOut.Owner == wallet {
		return true
	}
	for _, acc := range e.Accounts {
		if acc == wallet {
			return true
		}
	}
	return false
}

// amount returns the event-level amount. Like TokenAmount.Decimal, the raw
// base-unit string wins over the pre-scaled float.
func (e *RawEvent) amount() (decimal.Decimal, bool) {
	if e.Amount != "" {
		raw, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return decimal.Zero, false
		}
		return raw.Shift(-e.Decimals), true
	}
	if e.UIAmount != 0 {
		return decimal.NewFromFloat(e.UIAmount), true
	}
	return decimal.Zero, false
}

// blockTimeMilli normalizes the event timestamp to UTC milliseconds.
func (e *RawEvent) blockTimeMilli() int64 {
	return e.BlockTime * 1000
}
