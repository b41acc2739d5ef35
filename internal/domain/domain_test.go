package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Protocol
	}{
		{"jupiter", ProtocolJupiter},
		{"Raydium", ProtocolRaydium},
		{"KAMINO", ProtocolKamino},
		{"pump.fun", ProtocolPumpFun},
		{"pump_fun", ProtocolPumpFun},
	} {
		got, err := ParseProtocol(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}

	_, err := ParseProtocol("uniswap")
	require.Error(t, err)
}

func TestParseWindow(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want TimeWindow
	}{
		{"24h", Window24h},
		{"1d", Window24h},
		{"7d", Window7d},
		{"1w", Window7d},
		{"30d", Window30d},
		{"all", WindowAll},
	} {
		got, err := ParseWindow(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}

	_, err := ParseWindow("90d")
	require.Error(t, err)

	_, bounded := WindowAll.Duration()
	require.False(t, bounded)

	d, bounded := Window7d.Duration()
	require.True(t, bounded)
	require.Equal(t, 7*24*time.Hour, d)
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress("So11111111111111111111111111111111111111112"))

	require.Error(t, ValidateAddress(""))
	require.Error(t, ValidateAddress("tooshort"))
	// 0, O, I and l are not part of the base58 alphabet.
	require.Error(t, ValidateAddress("0OIl000000000000000000000000000000000000000"))
}

func TestParseSide(t *testing.T) {
	require.Equal(t, SideYes, ParseSide("YES"))
	require.Equal(t, SideYes, ParseSide("Above $150"))
	require.Equal(t, SideNo, ParseSide("NO"))
	require.Equal(t, SideNo, ParseSide("below"))
}

func TestPositionPnL(t *testing.T) {
	p := Position{
		Amount:     decimal.NewFromInt(10),
		EntryPrice: decimal.NewFromInt(100),
	}
	require.True(t, p.PnL(decimal.NewFromInt(150)).Equal(decimal.NewFromInt(500)))
	require.True(t, p.PnL(decimal.NewFromInt(90)).Equal(decimal.NewFromInt(-100)))
}

func TestEmptySummary(t *testing.T) {
	s := EmptySummary("wallet", time.Now())
	require.True(t, s.TotalValueUSD.IsZero())
	require.Zero(t, s.RiskScore)
	require.Empty(t, s.Protocols)
	require.NotNil(t, s.Protocols)
}
