package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
)

const (
	testWallet  = "DRiP2Pn2K6fuMLKQmt5rZWyHiUZ6WK3GChEySUpHSS4x"
	otherWallet = "4Nd1mYvNmPW6FVJBVdbYKnPBJDPsBCDwTHioiBgRA2oo"
	mintSOL     = "So11111111111111111111111111111111111111112"
	mintUSDC    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type sliceSource struct {
	txs []domain.Transaction
}

func (s *sliceSource) ByWallet(wallet string) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range s.txs {
		if tx.Wallet == wallet {
			out = append(out, tx)
		}
	}
	return out
}

func (s *sliceSource) Wallets() []string {
	seen := map[string]bool{}
	var out []string
	for _, tx := range s.txs {
		if !seen[tx.Wallet] {
			seen[tx.Wallet] = true
			out = append(out, tx.Wallet)
		}
	}
	return out
}

func buySOL(sig string, at time.Time, usdcIn, solOut int64) domain.Transaction {
	return domain.Transaction{
		Signature: sig,
		Wallet:    testWallet,
		Protocol:  domain.ProtocolJupiter,
		Type:      domain.TxSwap,
		TokenIn:   mintUSDC,
		TokenOut:  mintSOL,
		AmountIn:  decimal.NewFromInt(usdcIn),
		AmountOut: decimal.NewFromInt(solOut),
		USDValue:  decimal.NewFromInt(usdcIn),
		BlockTime: at.UnixMilli(),
	}
}

func TestService_TokenTrendUp(t *testing.T) {
	now := time.Now()
	txs := []domain.Transaction{
		buySOL("sig-1", now.Add(-5*time.Hour), 100, 1),
		buySOL("sig-2", now.Add(-4*time.Hour), 120, 1),
		buySOL("sig-3", now.Add(-3*time.Hour), 140, 1),
		buySOL("sig-4", now.Add(-2*time.Hour), 160, 1),
		buySOL("sig-5", now.Add(-time.Hour), 180, 1),
	}
	svc := New(zap.NewNop(), &sliceSource{txs: txs}, WithClock(func() time.Time { return now }))

	tr, err := svc.TokenTrend(context.Background(), testWallet, mintSOL)
	require.NoError(t, err)
	require.Equal(t, "up", tr.Direction)
	require.Equal(t, 5, tr.Points)
	require.True(t, tr.LastPrice.Equal(decimal.NewFromInt(180)))
}

func TestService_TokenTrendNotEnoughData(t *testing.T) {
	now := time.Now()
	svc := New(zap.NewNop(), &sliceSource{txs: []domain.Transaction{
		buySOL("sig-1", now, 100, 1),
	}})

	_, err := svc.TokenTrend(context.Background(), testWallet, mintSOL)
	require.ErrorIs(t, err, ErrNotEnoughData)
}

func TestService_VolumeProfileWindows(t *testing.T) {
	now := time.Now()
	txs := []domain.Transaction{
		buySOL("sig-1", now.Add(-time.Hour), 100, 1),
		buySOL("sig-2", now.Add(-3*24*time.Hour), 200, 2),
		buySOL("sig-3", now.Add(-20*24*time.Hour), 400, 4),
	}
	svc := New(zap.NewNop(), &sliceSource{txs: txs}, WithClock(func() time.Time { return now }))

	profile, err := svc.VolumeProfile(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, profile.Volume24h.Equal(decimal.NewFromInt(100)), "24h %s", profile.Volume24h)
	require.True(t, profile.Volume7d.Equal(decimal.NewFromInt(300)), "7d %s", profile.Volume7d)
	require.Equal(t, 1, profile.Trades24h)
	require.Equal(t, 2, profile.Trades7d)
	// (100+200+400)/3
	require.True(t, profile.AvgTradeSize.Round(2).Equal(decimal.RequireFromString("233.33")), "avg %s", profile.AvgTradeSize)
}

func TestService_AnomaliesFlagOutliers(t *testing.T) {
	now := time.Now()
	txs := []domain.Transaction{
		buySOL("sig-1", now.Add(-5*time.Hour), 100, 1),
		buySOL("sig-2", now.Add(-4*time.Hour), 101, 1),
		buySOL("sig-3", now.Add(-3*time.Hour), 99, 1),
		buySOL("sig-4", now.Add(-2*time.Hour), 100, 1),
		// wildly off-market fill
		buySOL("sig-5", now.Add(-time.Hour), 500, 1),
	}
	svc := New(zap.NewNop(), &sliceSource{txs: txs})

	anomalies, err := svc.Anomalies(context.Background(), testWallet, mintSOL, 1.5)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, "sig-5", anomalies[0].Signature)
}

func TestService_ResultsAreCached(t *testing.T) {
	now := time.Now()
	src := &sliceSource{txs: []domain.Transaction{
		buySOL("sig-1", now.Add(-time.Hour), 100, 1),
	}}
	svc := New(zap.NewNop(), src, WithClock(func() time.Time { return now }))

	first, err := svc.VolumeProfile(context.Background(), testWallet)
	require.NoError(t, err)

	// mutate the source: the cached read must not see it
	src.txs = append(src.txs, buySOL("sig-2", now, 900, 1))

	second, err := svc.VolumeProfile(context.Background(), testWallet)
	require.NoError(t, err)
	require.True(t, first.Volume24h.Equal(second.Volume24h))
}

func TestService_SearchWallets(t *testing.T) {
	now := time.Now()
	other := buySOL("sig-o", now, 100, 1)
	other.Wallet = otherWallet

	svc := New(zap.NewNop(), &sliceSource{txs: []domain.Transaction{
		buySOL("sig-1", now, 100, 1),
		other,
	}})

	require.Equal(t, []string{otherWallet, testWallet}, svc.SearchWallets(""))
	require.Equal(t, []string{testWallet}, svc.SearchWallets("DRiP"))
	require.Empty(t, svc.SearchWallets("zzz"))
}
