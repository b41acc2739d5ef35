// Package analytics serves aggregate read models derived from the transaction
// log: token price trends, volume profiles and price anomalies. Every read
// goes through the query cache, so hot endpoints never recompute per request.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/cache"
	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/pricer"
)

const (
	emaPeriod      = 5
	minTrendPoints = 3
)

// ErrNotEnoughData is returned when the wallet's log has too few priced
// trades for the requested aggregate.
var ErrNotEnoughData = errors.New("not enough data points")

// TransactionSource serves transactions for analytics reads.
type TransactionSource interface {
	ByWallet(wallet string) []domain.Transaction
	Wallets() []string
}

// TokenTrend is the smoothed price trajectory of one token in one wallet's
// trading history.
type TokenTrend struct {
	Wallet    string          `json:"wallet"`
	Token     string          `json:"token"`
	Points    int             `json:"points"`
	LastPrice decimal.Decimal `json:"last_price"`
	EMA       decimal.Decimal `json:"ema"`
	Direction string          `json:"direction"`
}

// VolumeProfile aggregates trading volume over the standard windows.
type VolumeProfile struct {
	Wallet       string          `json:"wallet"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	Volume7d     decimal.Decimal `json:"volume_7d"`
	Trades24h    int             `json:"trades_24h"`
	Trades7d     int             `json:"trades_7d"`
	AvgTradeSize decimal.Decimal `json:"avg_trade_size"`
}

// Anomaly is a priced trade far outside the token's historical distribution.
type Anomaly struct {
	Token     string          `json:"token"`
	Signature string          `json:"signature"`
	Price     decimal.Decimal `json:"price"`
	Mean      decimal.Decimal `json:"mean"`
	Sigma     decimal.Decimal `json:"sigma"`
	At        int64           `json:"at"`
}

// Service computes analytics reads through the cache.
type Service struct {
	logger *zap.Logger
	txs    TransactionSource
	now    func() time.Time

	trends    *cache.Cache[TokenTrend]
	volumes   *cache.Cache[VolumeProfile]
	anomalies *cache.Cache[[]Anomaly]
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCacheTTL overrides the cache TTL for all read models.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.trends = cache.New[TokenTrend](cache.DefaultSize, ttl)
		s.volumes = cache.New[VolumeProfile](cache.DefaultSize, ttl)
		s.anomalies = cache.New[[]Anomaly](cache.DefaultSize, ttl)
	}
}

// New builds the analytics service.
func New(logger *zap.Logger, txs TransactionSource, opts ...Option) *Service {
	s := &Service{
		logger:    logger,
		txs:       txs,
		now:       time.Now,
		trends:    cache.New[TokenTrend](cache.DefaultSize, cache.DefaultTTL),
		volumes:   cache.New[VolumeProfile](cache.DefaultSize, cache.DefaultTTL),
		anomalies: cache.New[[]Anomaly](cache.DefaultSize, cache.DefaultTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pricePoint is one implied trade price for a token.
type pricePoint struct {
	at        int64
	signature string
	price     decimal.Decimal
}

// pricePoints extracts the implied USD prices a wallet paid or received for
// the token, oldest first.
func pricePoints(txs []domain.Transaction, token string) []pricePoint {
	var points []pricePoint
	for i := range txs {
		tx := &txs[i]
		if tx.Type != domain.TxSwap {
			continue
		}

		var amount, counterAmount decimal.Decimal
		var counterToken string
		switch token {
		case tx.TokenOut:
			amount, counterToken, counterAmount = tx.AmountOut, tx.TokenIn, tx.AmountIn
		case tx.TokenIn:
			amount, counterToken, counterAmount = tx.AmountIn, tx.TokenOut, tx.AmountOut
		default:
			continue
		}
		if amount.Sign() <= 0 {
			continue
		}

		var price decimal.Decimal
		if tx.USDValue.Sign() > 0 {
			price = tx.USDValue.Div(amount)
		} else if symbol, ok := pricer.SymbolForMint(counterToken); ok && pricer.IsStablecoin(symbol) && counterAmount.Sign() > 0 {
			price = counterAmount.Div(amount)
		} else {
			continue
		}
		points = append(points, pricePoint{at: tx.BlockTime, signature: tx.Signature, price: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].at < points[j].at })
	return points
}

// TokenTrend returns the smoothed price direction for one token in the
// wallet's history.
func (s *Service) TokenTrend(ctx context.Context, wallet, token string) (TokenTrend, error) {
	key := fmt.Sprintf("trend|%s|%s", wallet, token)
	return s.trends.GetOrCompute(ctx, key, func(context.Context) (TokenTrend, error) {
		points := pricePoints(s.txs.ByWallet(wallet), token)
		if len(points) < minTrendPoints {
			return TokenTrend{}, errors.Wrapf(ErrNotEnoughData, "need %d priced trades, got %d", minTrendPoints, len(points))
		}

		closes := make([]float64, len(points))
		for i, p := range points {
			closes[i], _ = p.price.Float64()
		}

		// warmup eats period-1 points, keep at least half the series
		period := emaPeriod
		if len(closes) < period*2 {
			period = len(closes) / 2
			if period < 1 {
				period = 1
			}
		}
		ema := trend.NewEmaWithPeriod[float64](period)
		smoothed := helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes)))
		if len(smoothed) == 0 {
			return TokenTrend{}, errors.Wrap(ErrNotEnoughData, "ema warmup consumed all points")
		}

		last := smoothed[len(smoothed)-1]
		direction := "flat"
		if len(smoothed) > 1 {
			first := smoothed[0]
			switch {
			case last > first*1.01:
				direction = "up"
			case last < first*0.99:
				direction = "down"
			}
		}

		return TokenTrend{
			Wallet:    wallet,
			Token:     token,
			Points:    len(points),
			LastPrice: points[len(points)-1].price,
			EMA:       decimal.NewFromFloat(last),
			Direction: direction,
		}, nil
	})
}

// VolumeProfile returns the wallet's trading volume aggregates.
func (s *Service) VolumeProfile(ctx context.Context, wallet string) (VolumeProfile, error) {
	key := "volume|" + wallet
	return s.volumes.GetOrCompute(ctx, key, func(context.Context) (VolumeProfile, error) {
		now := s.now()
		profile := VolumeProfile{
			Wallet:       wallet,
			Volume24h:    decimal.Zero,
			Volume7d:     decimal.Zero,
			AvgTradeSize: decimal.Zero,
		}

		total := decimal.Zero
		trades := 0
		for _, tx := range s.txs.ByWallet(wallet) {
			if tx.USDValue.Sign() <= 0 {
				continue
			}
			trades++
			total = total.Add(tx.USDValue)

			age := now.Sub(tx.Time())
			if age <= 24*time.Hour {
				profile.Volume24h = profile.Volume24h.Add(tx.USDValue)
				profile.Trades24h++
			}
			if age <= 7*24*time.Hour {
				profile.Volume7d = profile.Volume7d.Add(tx.USDValue)
				profile.Trades7d++
			}
		}
		if trades > 0 {
			profile.AvgTradeSize = total.Div(decimal.NewFromInt(int64(trades)))
		}
		return profile, nil
	})
}

// Anomalies flags trades whose implied price sits more than threshold
// standard deviations from the token's mean.
func (s *Service) Anomalies(ctx context.Context, wallet, token string, threshold float64) ([]Anomaly, error) {
	key := fmt.Sprintf("anomalies|%s|%s|%.2f", wallet, token, threshold)
	return s.anomalies.GetOrCompute(ctx, key, func(context.Context) ([]Anomaly, error) {
		points := pricePoints(s.txs.ByWallet(wallet), token)
		if len(points) < minTrendPoints {
			return nil, errors.Wrapf(ErrNotEnoughData, "need %d priced trades, got %d", minTrendPoints, len(points))
		}

		var sum, sumSq float64
		for _, p := range points {
			f, _ := p.price.Float64()
			sum += f
			sumSq += f * f
		}
		n := float64(len(points))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		stddev := math.Sqrt(variance)
		if stddev == 0 {
			return []Anomaly{}, nil
		}

		anomalies := []Anomaly{}
		for _, p := range points {
			f, _ := p.price.Float64()
			sigma := math.Abs(f-mean) / stddev
			if sigma >= threshold {
				anomalies = append(anomalies, Anomaly{
					Token:     token,
					Signature: p.signature,
					Price:     p.price,
					Mean:      decimal.NewFromFloat(mean),
					Sigma:     decimal.NewFromFloat(sigma),
					At:        p.at,
				})
			}
		}
		return anomalies, nil
	})
}

// SearchWallets returns indexed wallets matching the query prefix.
func (s *Service) SearchWallets(query string) []string {
	query = strings.TrimSpace(query)

	var matched []string
	for _, w := range s.txs.Wallets() {
		if query == "" || strings.HasPrefix(w, query) {
			matched = append(matched, w)
		}
	}
	sort.Strings(matched)
	return matched
}
