package pricer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingPricer struct{}

func (failingPricer) GetPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("backend down")
}

func TestChain_FallsThroughToNextBackend(t *testing.T) {
	static := NewStaticPricer(map[string]decimal.Decimal{
		"SOL": decimal.NewFromInt(150),
	})
	chain := NewChain(zap.NewNop(), failingPricer{}, static)

	price, err := chain.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(150)))
}

func TestChain_AllBackendsFail(t *testing.T) {
	chain := NewChain(zap.NewNop(), failingPricer{}, failingPricer{})

	_, err := chain.GetPrice(context.Background(), "SOL")
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestChain_StablecoinShortCircuits(t *testing.T) {
	// no backends at all: stables must still price at one USD
	chain := NewChain(zap.NewNop())

	price, err := chain.GetPrice(context.Background(), "USDC")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestSymbolForMint(t *testing.T) {
	symbol, ok := SymbolForMint("So11111111111111111111111111111111111111112")
	require.True(t, ok)
	require.Equal(t, "SOL", symbol)

	_, ok = SymbolForMint("UnknownMint1111111111111111111111111111111")
	require.False(t, ok)
}

func TestStaticPricer_UnknownSymbol(t *testing.T) {
	static := NewStaticPricer(nil)

	_, err := static.GetPrice(context.Background(), "SOL")
	require.ErrorIs(t, err, ErrPriceUnavailable)

	static.Set("SOL", decimal.NewFromInt(140))
	price, err := static.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(140)))
}
