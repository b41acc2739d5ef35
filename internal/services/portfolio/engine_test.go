package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/pricer"
)

const (
	testWallet = "DRiP2Pn2K6fuMLKQmt5rZWyHiUZ6WK3GChEySUpHSS4x"
	mintSOL    = "So11111111111111111111111111111111111111112"
	mintUSDC   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintMeme   = "MemeCoinMint111111111111111111111111111111"
)

type sliceSource struct {
	txs []domain.Transaction
}

func (s *sliceSource) ByWallet(string) []domain.Transaction {
	out := make([]domain.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

func swap(sig string, bt int64, protocol domain.Protocol, tokenIn string, amtIn int64, tokenOut string, amtOut int64, usd int64) domain.Transaction {
	return domain.Transaction{
		Signature: sig,
		Wallet:    testWallet,
		Protocol:  protocol,
		Type:      domain.TxSwap,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  decimal.NewFromInt(amtIn),
		AmountOut: decimal.NewFromInt(amtOut),
		USDValue:  decimal.NewFromInt(usd),
		BlockTime: bt,
	}
}

func newEngine(txs []domain.Transaction, prices map[string]decimal.Decimal, now time.Time) *Engine {
	return New(zap.NewNop(), &sliceSource{txs: txs}, pricer.NewStaticPricer(prices),
		WithClock(func() time.Time { return now }))
}

func TestEngine_WeightedAverageCost(t *testing.T) {
	now := time.UnixMilli(4000)
	txs := []domain.Transaction{
		// 1 SOL for 100 USDC, then 1 SOL for 200 USDC: entry must land at 150
		swap("sig-1", 1000, domain.ProtocolJupiter, mintUSDC, 100, mintSOL, 1, 0),
		swap("sig-2", 2000, domain.ProtocolJupiter, mintUSDC, 200, mintSOL, 1, 0),
		// sell 1 SOL for 300 USDC: realized (300-150)*1 = 150
		swap("sig-3", 3000, domain.ProtocolJupiter, mintSOL, 1, mintUSDC, 300, 0),
	}
	engine := newEngine(txs, map[string]decimal.Decimal{"SOL": decimal.NewFromInt(250)}, now)

	positions, err := engine.Positions(context.Background(), testWallet)
	require.NoError(t, err)

	var sol *domain.Position
	for i := range positions {
		if positions[i].Token == mintSOL {
			sol = &positions[i]
		}
	}
	require.NotNil(t, sol)
	require.True(t, sol.Amount.Equal(decimal.NewFromInt(1)), "amount %s", sol.Amount)
	require.True(t, sol.EntryPrice.Equal(decimal.NewFromInt(150)), "entry %s", sol.EntryPrice)
	require.True(t, sol.Unrealized.Equal(decimal.NewFromInt(100)), "unrealized %s", sol.Unrealized)

	pnl, err := engine.PnL(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, pnl.RealizedAll.Equal(decimal.NewFromInt(150)), "realized %s", pnl.RealizedAll)
}

func TestEngine_RecomputeIsOrderIndependent(t *testing.T) {
	now := time.UnixMilli(10000)
	txs := []domain.Transaction{
		swap("sig-1", 1000, domain.ProtocolJupiter, mintUSDC, 100, mintSOL, 1, 0),
		swap("sig-2", 2000, domain.ProtocolRaydium, mintUSDC, 200, mintSOL, 1, 0),
		swap("sig-3", 3000, domain.ProtocolJupiter, mintSOL, 1, mintUSDC, 300, 0),
	}
	prices := map[string]decimal.Decimal{"SOL": decimal.NewFromInt(200)}

	forward := newEngine(txs, prices, now)
	reversed := newEngine([]domain.Transaction{txs[2], txs[0], txs[1]}, prices, now)

	a, err := forward.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	b, err := reversed.Summary(context.Background(), testWallet)
	require.NoError(t, err)

	require.True(t, a.TotalValueUSD.Equal(b.TotalValueUSD))
	require.True(t, a.Unrealized.Equal(b.Unrealized))
	require.Equal(t, a.RiskScore, b.RiskScore)
	require.Equal(t, a.PositionCount, b.PositionCount)
}

func TestEngine_RealizedWindows(t *testing.T) {
	now := time.Now()
	at := func(age time.Duration) int64 { return now.Add(-age).UnixMilli() }

	txs := []domain.Transaction{
		swap("sig-buy", at(40*24*time.Hour), domain.ProtocolJupiter, mintUSDC, 300, mintSOL, 3, 0),
		// each sale realizes (200-100)*1 = 100 at a different age
		swap("sig-s1", at(time.Hour), domain.ProtocolJupiter, mintSOL, 1, mintUSDC, 200, 0),
		swap("sig-s2", at(3*24*time.Hour), domain.ProtocolJupiter, mintSOL, 1, mintUSDC, 200, 0),
		swap("sig-s3", at(10*24*time.Hour), domain.ProtocolJupiter, mintSOL, 1, mintUSDC, 200, 0),
	}
	engine := newEngine(txs, map[string]decimal.Decimal{"SOL": decimal.NewFromInt(200)}, now)

	pnl, err := engine.PnL(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, pnl.Realized24h.Equal(decimal.NewFromInt(100)), "24h %s", pnl.Realized24h)
	require.True(t, pnl.Realized7d.Equal(decimal.NewFromInt(200)), "7d %s", pnl.Realized7d)
	require.True(t, pnl.Realized30d.Equal(decimal.NewFromInt(300)), "30d %s", pnl.Realized30d)
	require.True(t, pnl.RealizedAll.Equal(decimal.NewFromInt(300)))
}

func TestEngine_EmptyWallet(t *testing.T) {
	now := time.Now()
	engine := newEngine(nil, nil, now)

	summary, err := engine.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Equal(t, testWallet, summary.Wallet)
	require.True(t, summary.TotalValueUSD.IsZero())
	require.Equal(t, 0, summary.RiskScore)
	require.Equal(t, 0, summary.PositionCount)
	require.Empty(t, summary.Protocols)
}

func TestEngine_PriceUnavailableFlagged(t *testing.T) {
	now := time.UnixMilli(5000)
	txs := []domain.Transaction{
		swap("sig-1", 1000, domain.ProtocolPumpFun, mintUSDC, 50, mintMeme, 1000000, 0),
		swap("sig-2", 2000, domain.ProtocolJupiter, mintUSDC, 100, mintSOL, 1, 0),
	}
	engine := newEngine(txs, map[string]decimal.Decimal{"SOL": decimal.NewFromInt(200)}, now)

	positions, err := engine.Positions(context.Background(), testWallet)
	require.NoError(t, err)

	var meme, sol *domain.Position
	for i := range positions {
		switch positions[i].Token {
		case mintMeme:
			meme = &positions[i]
		case mintSOL:
			sol = &positions[i]
		}
	}
	require.NotNil(t, meme)
	require.True(t, meme.PriceUnavailable)
	require.True(t, meme.USDValue.IsZero())
	require.NotNil(t, sol)
	require.False(t, sol.PriceUnavailable)

	// total value counts only priced positions
	summary, err := engine.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, summary.TotalValueUSD.Equal(decimal.NewFromInt(200)), "total %s", summary.TotalValueUSD)
}

func TestEngine_RiskScoreMonotone(t *testing.T) {
	now := time.UnixMilli(9000)
	prices := map[string]decimal.Decimal{"SOL": decimal.NewFromInt(100)}

	// everything in one position on one protocol
	concentrated := newEngine([]domain.Transaction{
		swap("sig-1", 1000, domain.ProtocolJupiter, mintUSDC, 100, mintSOL, 1, 0),
	}, prices, now)

	// spread over four protocols
	diversified := newEngine([]domain.Transaction{
		swap("sig-1", 1000, domain.ProtocolJupiter, mintUSDC, 100, mintSOL, 1, 0),
		swap("sig-2", 2000, domain.ProtocolRaydium, mintUSDC, 100, mintSOL, 1, 0),
		swap("sig-3", 3000, domain.ProtocolOrca, mintUSDC, 100, mintSOL, 1, 0),
		swap("sig-4", 4000, domain.ProtocolMeteora, mintUSDC, 100, mintSOL, 1, 0),
	}, prices, now)

	a, err := concentrated.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	b, err := diversified.Summary(context.Background(), testWallet)
	require.NoError(t, err)

	require.Equal(t, 100, a.RiskScore)
	require.Greater(t, a.RiskScore, b.RiskScore)
	require.GreaterOrEqual(t, b.RiskScore, 0)
	require.LessOrEqual(t, b.RiskScore, 100)
}

func TestEngine_LendingPositions(t *testing.T) {
	now := time.UnixMilli(9000)
	deposit := domain.Transaction{
		Signature: "sig-dep",
		Wallet:    testWallet,
		Protocol:  domain.ProtocolKamino,
		Type:      domain.TxDeposit,
		TokenIn:   mintUSDC,
		AmountIn:  decimal.NewFromInt(500),
		USDValue:  decimal.NewFromInt(500),
		BlockTime: 1000,
	}
	withdraw := domain.Transaction{
		Signature: "sig-wd",
		Wallet:    testWallet,
		Protocol:  domain.ProtocolKamino,
		Type:      domain.TxWithdraw,
		TokenOut:  mintUSDC,
		AmountOut: decimal.NewFromInt(200),
		USDValue:  decimal.NewFromInt(200),
		BlockTime: 2000,
	}

	engine := newEngine([]domain.Transaction{deposit, withdraw}, nil, now)

	positions, err := engine.Positions(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, domain.PositionLendingSupply, positions[0].Type)
	require.True(t, positions[0].Amount.Equal(decimal.NewFromInt(300)), "amount %s", positions[0].Amount)
	// supply entered and exited at par, nothing realized
	pnl, err := engine.PnL(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, pnl.RealizedAll.IsZero())
}

func TestEngine_Exposures(t *testing.T) {
	now := time.UnixMilli(9000)
	txs := []domain.Transaction{
		// net +2 SOL accumulated
		swap("sig-1", 1000, domain.ProtocolJupiter, mintUSDC, 200, mintSOL, 2, 0),
		// unknown mint dumped, must not appear
		swap("sig-2", 2000, domain.ProtocolPumpFun, mintMeme, 1000, mintUSDC, 10, 0),
	}
	engine := newEngine(txs, map[string]decimal.Decimal{"SOL": decimal.NewFromInt(150)}, now)

	exposures, err := engine.Exposures(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, exposures, 1)

	sol := exposures["SOL"]
	require.Equal(t, 1, sol.Direction)
	require.True(t, sol.USD.Equal(decimal.NewFromInt(300)), "usd %s", sol.USD)
	require.Equal(t, int64(1000), sol.LastActivity)
}
