package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a derived holding for one (wallet, protocol, type, token) key.
// It is a pure projection of the transaction log: recomputing from scratch
// must always reproduce it.
type Position struct {
	Wallet       string          `json:"wallet"`
	Protocol     Protocol        `json:"protocol"`
	Type         PositionType    `json:"position_type"`
	Token        string          `json:"token"`
	Pool         string          `json:"pool,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	USDValue     decimal.Decimal `json:"usd_value"`
	Unrealized   decimal.Decimal `json:"unrealized_pnl"`
	APY          decimal.Decimal `json:"apy"`
	// PriceUnavailable marks positions whose token had no price quote.
	// Their USDValue is zero but the holding is still reported.
	PriceUnavailable bool      `json:"price_unavailable,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Key returns the upsert key for the position.
func (p *Position) Key() string {
	return p.Wallet + "|" + string(p.Protocol) + "|" + string(p.Type) + "|" + p.Token
}

// PnL recomputes unrealized PnL against the given market price.
func (p *Position) PnL(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(p.EntryPrice).Mul(p.Amount)
}

// PnLBreakdown is realized PnL over the standard windows plus unrealized.
type PnLBreakdown struct {
	Wallet      string          `json:"wallet"`
	Realized24h decimal.Decimal `json:"realized_pnl_24h"`
	Realized7d  decimal.Decimal `json:"realized_pnl_7d"`
	Realized30d decimal.Decimal `json:"realized_pnl_30d"`
	RealizedAll decimal.Decimal `json:"realized_pnl_all"`
	Unrealized  decimal.Decimal `json:"unrealized_pnl"`
}

// Realized returns the realized PnL for one window.
func (b PnLBreakdown) Realized(w TimeWindow) decimal.Decimal {
	switch w {
	case Window24h:
		return b.Realized24h
	case Window7d:
		return b.Realized7d
	case Window30d:
		return b.Realized30d
	default:
		return b.RealizedAll
	}
}

// WalletSummary aggregates a wallet's current state. One row per wallet,
// replaced wholesale on recomputation.
type WalletSummary struct {
	Wallet             string          `json:"wallet"`
	TotalValueUSD      decimal.Decimal `json:"total_value_usd"`
	Realized24h        decimal.Decimal `json:"realized_pnl_24h"`
	Realized7d         decimal.Decimal `json:"realized_pnl_7d"`
	Realized30d        decimal.Decimal `json:"realized_pnl_30d"`
	Unrealized         decimal.Decimal `json:"unrealized_pnl"`
	LargestPositionPct decimal.Decimal `json:"largest_position_pct"`
	ProtocolCount      int             `json:"protocol_count"`
	PositionCount      int             `json:"position_count"`
	RiskScore          int             `json:"risk_score"`
	// LastActivity is the newest block time in UTC milliseconds, zero when empty.
	LastActivity int64     `json:"last_activity"`
	Protocols    []string  `json:"protocols"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmptySummary is the zero-state summary returned for wallets with no
// indexed transactions.
func EmptySummary(wallet string, now time.Time) WalletSummary {
	return WalletSummary{
		Wallet:             wallet,
		TotalValueUSD:      decimal.Zero,
		Realized24h:        decimal.Zero,
		Realized7d:         decimal.Zero,
		Realized30d:        decimal.Zero,
		Unrealized:         decimal.Zero,
		LargestPositionPct: decimal.Zero,
		Protocols:          []string{},
		UpdatedAt:          now.UTC(),
	}
}
