// Package pricer resolves USD prices for the tokens held in tracked wallets.
// Backends implement the same interface; the chain tries them in order so an
// exchange outage degrades valuation instead of failing it.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrPriceUnavailable is returned when no backend can price the token. Callers
// keep the position and flag it instead of dropping it.
var ErrPriceUnavailable = errors.New("price unavailable")

// Pricer resolves the USD price of a token symbol.
type Pricer interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// mintSymbols maps well-known Solana mints to exchange symbols.
var mintSymbols = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "JITOSOL",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "MSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm": "WIF",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "RAY",
}

var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
}

// SymbolForMint returns the exchange symbol for a known mint. Unknown mints
// return false; their positions are valued with the price-unavailable flag.
func SymbolForMint(mint string) (string, bool) {
	symbol, ok := mintSymbols[mint]
	return symbol, ok
}

// IsStablecoin reports whether the symbol is pegged to one USD.
func IsStablecoin(symbol string) bool {
	return stablecoins[symbol]
}

// Chain tries each backend in order and returns the first price found.
type Chain struct {
	logger   *zap.Logger
	backends []Pricer
}

// NewChain builds a fallback chain over the given backends.
func NewChain(logger *zap.Logger, backends ...Pricer) *Chain {
	return &Chain{logger: logger, backends: backends}
}

// GetPrice resolves the symbol through the chain. Stablecoins short-circuit to
// one USD without touching any backend.
func (c *Chain) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if IsStablecoin(symbol) {
		return decimal.NewFromInt(1), nil
	}

	for _, backend := range c.backends {
		price, err := backend.GetPrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		c.logger.Debug("price backend failed",
			zap.String("symbol", symbol),
			zap.Error(err))
	}

	return decimal.Decimal{}, errors.Wrapf(ErrPriceUnavailable, "symbol %s", symbol)
}
