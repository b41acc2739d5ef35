// Package conviction correlates a wallet's DeFi exposure with its
// prediction-market bets and scores how strongly the two agree. Scores are
// computed on demand from current state and never persisted as truth.
package conviction

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/portfolio"
	"github.com/vadiminshakov/cortex/internal/services/prediction"
)

const (
	defaultScoreFloor      = 0.8
	defaultConfidenceFloor = 0.3
	defaultDecayTau        = 7 * 24 * time.Hour
)

// assetKeywords maps market slug/title tokens to asset symbols.
var assetKeywords = map[string]string{
	"bitcoin":  "BTC",
	"btc":      "BTC",
	"ethereum": "ETH",
	"eth":      "ETH",
	"solana":   "SOL",
	"sol":      "SOL",
	"dogecoin": "DOGE",
	"doge":     "DOGE",
	"bonk":     "BONK",
	"jupiter":  "JUP",
	"jup":      "JUP",
	"wif":      "WIF",
}

// ExtractAsset maps a market slug or title to the asset it is about.
func ExtractAsset(slug, title string) (string, bool) {
	for _, text := range []string{slug, title} {
		for _, token := range tokenize(text) {
			if asset, ok := assetKeywords[token]; ok {
				return asset, true
			}
		}
	}
	return "", false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// ExposureSource serves per-asset DeFi exposure, implemented by the portfolio
// engine.
type ExposureSource interface {
	Exposures(ctx context.Context, wallet string) (map[string]portfolio.Exposure, error)
}

// Engine computes conviction scores.
type Engine struct {
	logger      *zap.Logger
	exposures   ExposureSource
	predictions prediction.Source
	now         func() time.Time

	scoreFloor      float64
	confidenceFloor float64
	decayTau        time.Duration
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithInformedFloors overrides the informed-trader thresholds.
func WithInformedFloors(score, confidence float64) Option {
	return func(e *Engine) {
		e.scoreFloor = score
		e.confidenceFloor = confidence
	}
}

// WithDecayTau overrides the recency decay constant.
func WithDecayTau(tau time.Duration) Option {
	return func(e *Engine) {
		e.decayTau = tau
	}
}

// New builds a conviction engine.
func New(logger *zap.Logger, exposures ExposureSource, predictions prediction.Source, opts ...Option) *Engine {
	e := &Engine{
		logger:          logger,
		exposures:       exposures,
		predictions:     predictions,
		now:             time.Now,
		scoreFloor:      defaultScoreFloor,
		confidenceFloor: defaultConfidenceFloor,
		decayTau:        defaultDecayTau,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// bet is the aggregated prediction-market stance on one asset.
type bet struct {
	// net is Σ side·size, positive bullish.
	net      decimal.Decimal
	evidence string
}

// Compute scores the wallet. Wallets with no overlapping assets get the
// neutral score, never an error.
func (e *Engine) Compute(ctx context.Context, wallet string) (domain.ConvictionScore, error) {
	preds, err := e.predictions.Positions(ctx, wallet)
	if err != nil {
		return domain.ConvictionScore{}, errors.Wrap(err, "fetch prediction positions")
	}
	exposures, err := e.exposures.Exposures(ctx, wallet)
	if err != nil {
		return domain.ConvictionScore{}, errors.Wrap(err, "compute exposures")
	}

	bets := make(map[string]*bet)
	for _, p := range preds {
		asset, ok := ExtractAsset(p.MarketSlug, p.MarketTitle)
		if !ok {
			continue
		}
		b, ok := bets[asset]
		if !ok {
			b = &bet{}
			bets[asset] = b
		}
		signed := p.Size
		if p.Side == domain.SideNo {
			signed = signed.Neg()
		}
		b.net = b.net.Add(signed)
		if b.evidence == "" {
			b.evidence = p.MarketSlug
		}
	}

	now := e.now()
	score := domain.ConvictionScore{
		Wallet:     wallet,
		Signals:    []domain.Signal{},
		AnalyzedAt: now.UTC(),
	}

	var (
		weightedSum decimal.Decimal
		totalWeight decimal.Decimal
		overlaps    int
		newestTx    int64
	)

	for asset, b := range bets {
		if b.net.Sign() == 0 {
			continue
		}

		exp, ok := exposures[asset]
		if !ok {
			// a bet on an asset the wallet never touched on-chain is not
			// evidence either way
			continue
		}
		if exp.Direction == 0 || exp.USD.Sign() == 0 {
			score.Signals = append(score.Signals, domain.Signal{
				Type:               domain.SignalNone,
				Asset:              asset,
				Alignment:          decimal.Zero,
				PredictionEvidence: b.evidence,
			})
			continue
		}

		dirBet := b.net.Sign()
		sizeBet := b.net.Abs()
		sizeDefi := exp.USD

		balance := decimal.Min(sizeBet, sizeDefi).Div(decimal.Max(sizeBet, sizeDefi))
		alignment := balance.Mul(decimal.NewFromInt(int64(exp.Direction * dirBet)))
		weight := sizeBet.Add(sizeDefi)

		sig := domain.Signal{
			Asset:              asset,
			Alignment:          alignment,
			DefiEvidence:       exposureEvidence(exp),
			PredictionEvidence: b.evidence,
		}
		switch {
		case alignment.Sign() < 0:
			sig.Type = domain.SignalMixed
		case dirBet > 0:
			sig.Type = domain.SignalBullishAlignment
		default:
			sig.Type = domain.SignalBearishAlignment
		}
		score.Signals = append(score.Signals, sig)

		weightedSum = weightedSum.Add(weight.Mul(alignment))
		totalWeight = totalWeight.Add(weight)
		overlaps++
		if exp.LastActivity > newestTx {
			newestTx = exp.LastActivity
		}
	}

	sort.Slice(score.Signals, func(i, j int) bool { return score.Signals[i].Asset < score.Signals[j].Asset })

	if overlaps == 0 {
		neutral := domain.Neutral(wallet, now)
		neutral.Signals = score.Signals
		return neutral, nil
	}

	raw, _ := weightedSum.Div(totalWeight).Float64()
	score.Score = (raw + 1) / 2
	score.Confidence = e.confidence(overlaps, newestTx, now)
	score.InformedTrader = score.Score >= e.scoreFloor && score.Confidence >= e.confidenceFloor
	return score, nil
}

// confidence grows with the number of corroborated assets and decays with the
// age of the newest corroborating transaction.
func (e *Engine) confidence(overlaps int, newestTx int64, now time.Time) float64 {
	volume := float64(overlaps) / float64(overlaps+1)

	decay := 1.0
	if newestTx > 0 {
		age := now.Sub(time.UnixMilli(newestTx))
		if age > 0 {
			decay = math.Exp(-age.Seconds() / e.decayTau.Seconds())
		}
	}
	return volume * decay
}

func exposureEvidence(exp portfolio.Exposure) string {
	dir := "accumulating"
	if exp.Direction < 0 {
		dir = "distributing"
	}
	return dir + " " + exp.Symbol + " ($" + exp.USD.Round(2).String() + ")"
}

// FindInformedTraders scores every wallet and keeps the informed ones at or
// above minConviction, highest score first.
func (e *Engine) FindInformedTraders(ctx context.Context, wallets []string, minConviction float64) ([]domain.ConvictionScore, error) {
	var informed []domain.ConvictionScore
	for _, wallet := range wallets {
		score, err := e.Compute(ctx, wallet)
		if err != nil {
			e.logger.Warn("conviction compute failed",
				zap.String("wallet", wallet),
				zap.Error(err))
			continue
		}
		if score.InformedTrader && score.Score >= minConviction {
			informed = append(informed, score)
		}
	}
	sort.Slice(informed, func(i, j int) bool { return informed[i].Score > informed[j].Score })
	return informed, nil
}
