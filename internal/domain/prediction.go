package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of a prediction-market bet.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide normalizes the outcome strings prediction platforms return.
// Phrases like "above", "over" and "up" count as bullish YES outcomes.
func ParseSide(s string) Side {
	u := strings.ToUpper(s)
	if u == "YES" || strings.Contains(u, "ABOVE") || strings.Contains(u, "OVER") || strings.Contains(u, "UP") {
		return SideYes
	}
	return SideNo
}

// PredictionPosition is an externally supplied prediction-market holding.
type PredictionPosition struct {
	Wallet       string          `json:"wallet"`
	MarketSlug   string          `json:"market_slug"`
	MarketTitle  string          `json:"market_title,omitempty"`
	OutcomeToken string          `json:"outcome_token"`
	Side         Side            `json:"side"`
	Size         decimal.Decimal `json:"size"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Platform     string          `json:"platform"`
}
