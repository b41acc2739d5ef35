package pricer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StaticPricer serves prices from a fixed table. Used in tests and as a
// last-resort pin for tokens no exchange lists.
type StaticPricer struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticPricer(prices map[string]decimal.Decimal) *StaticPricer {
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return &StaticPricer{prices: prices}
}

func (p *StaticPricer) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Decimal{}, errors.Wrapf(ErrPriceUnavailable, "symbol %s", symbol)
	}
	return price, nil
}

// Set pins a price for the symbol.
func (p *StaticPricer) Set(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price
}
