package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType classifies a per-asset cross-domain signal.
type SignalType string

const (
	SignalBullishAlignment SignalType = "bullish_alignment"
	SignalBearishAlignment SignalType = "bearish_alignment"
	SignalMixed            SignalType = "mixed_signal"
	SignalNone             SignalType = "no_signal"
)

// Signal is one per-asset correlation between DeFi exposure and a
// prediction-market bet. Ephemeral, produced per conviction computation.
type Signal struct {
	Type               SignalType      `json:"type"`
	Asset              string          `json:"asset"`
	Alignment          decimal.Decimal `json:"alignment"`
	DefiEvidence       string          `json:"defi_evidence"`
	PredictionEvidence string          `json:"prediction_evidence"`
}

// ConvictionScore measures how strongly a wallet's prediction-market bets
// are corroborated by its DeFi trading. Pure function of the current
// Position and PredictionPosition sets; never persisted as truth.
type ConvictionScore struct {
	Wallet         string    `json:"wallet"`
	Score          float64   `json:"score"`
	Confidence     float64   `json:"confidence"`
	Signals        []Signal  `json:"signals"`
	InformedTrader bool      `json:"informed_trader"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// Neutral is the score for wallets with no overlapping assets:
// undefined agreement is represented as 0.5 with zero confidence.
func Neutral(wallet string, now time.Time) ConvictionScore {
	return ConvictionScore{
		Wallet:     wallet,
		Score:      0.5,
		Confidence: 0,
		Signals:    []Signal{},
		AnalyzedAt: now.UTC(),
	}
}
