// Package portfolio derives positions, PnL and risk from the transaction log.
// Everything is a pure fold over the wallet's ordered transactions, so
// recomputation is deterministic and idempotent; only pricing touches the
// outside world.
package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/pricer"
)

// TransactionSource serves a wallet's transactions ordered by block time.
type TransactionSource interface {
	ByWallet(wallet string) []domain.Transaction
}

// Exposure is the wallet's net directional stance on one asset, used by the
// conviction engine.
type Exposure struct {
	Symbol string
	// Direction is +1 accumulating, -1 distributing, 0 flat.
	Direction int
	// USD is the absolute size of the net flow at current prices.
	USD decimal.Decimal
	// LastActivity is the newest contributing block time in UTC milliseconds.
	LastActivity int64
}

// Engine computes portfolio projections for one wallet at a time.
type Engine struct {
	logger *zap.Logger
	txs    TransactionSource
	pricer pricer.Pricer
	now    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New builds a portfolio engine over the given transaction source and pricer.
func New(logger *zap.Logger, txs TransactionSource, p pricer.Pricer, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		txs:    txs,
		pricer: p,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// holding is the fold's mutable per-key state. Entry is the volume-weighted
// average cost in USD per token unit; zero when the basis is unknown.
type holding struct {
	protocol domain.Protocol
	ptype    domain.PositionType
	token    string
	pool     string
	amount   decimal.Decimal
	entry    decimal.Decimal
}

// realization is one realized PnL event.
type realization struct {
	at  int64
	pnl decimal.Decimal
}

type foldState struct {
	holdings     map[string]*holding
	realizations []realization
	netFlow      map[string]decimal.Decimal
	flowAt       map[string]int64
	lastActivity int64
}

func holdingKey(protocol domain.Protocol, ptype domain.PositionType, token, pool string) string {
	return string(protocol) + "|" + string(ptype) + "|" + token + "|" + pool
}

func (s *foldState) get(protocol domain.Protocol, ptype domain.PositionType, token, pool string) *holding {
	key := holdingKey(protocol, ptype, token, pool)
	h, ok := s.holdings[key]
	if !ok {
		h = &holding{protocol: protocol, ptype: ptype, token: token, pool: pool}
		s.holdings[key] = h
	}
	return h
}

// increase applies volume-weighted average cost: the entry price moves toward
// the new unit cost in proportion to the added volume. Unknown unit costs
// leave the basis untouched.
func (h *holding) increase(amount, unitCost decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	if unitCost.Sign() > 0 {
		prev := h.amount
		if prev.Sign() < 0 {
			prev = decimal.Zero
		}
		total := prev.Add(amount)
		h.entry = h.entry.Mul(prev).Add(unitCost.Mul(amount)).Div(total)
	}
	h.amount = h.amount.Add(amount)
}

// decrease reduces the holding without touching the entry price and returns
// the realized PnL against the exit price. Zero exit or entry realizes nothing.
func (h *holding) decrease(amount, exitPrice decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	closed := amount
	if h.amount.Sign() > 0 && closed.GreaterThan(h.amount) {
		closed = h.amount
	}
	h.amount = h.amount.Sub(amount)

	if exitPrice.Sign() <= 0 || h.entry.Sign() <= 0 {
		return decimal.Zero
	}
	return exitPrice.Sub(h.entry).Mul(closed)
}

// unitUSD derives the USD price per token unit of one leg: the transaction's
// USD value when known, otherwise the stablecoin counter-leg.
func unitUSD(tx *domain.Transaction, amount decimal.Decimal, counterToken string, counterAmount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	if tx.USDValue.Sign() > 0 {
		return tx.USDValue.Div(amount)
	}
	if symbol, ok := pricer.SymbolForMint(counterToken); ok && pricer.IsStablecoin(symbol) && counterAmount.Sign() > 0 {
		return counterAmount.Div(amount)
	}
	return decimal.Zero
}

func (e *Engine) fold(wallet string) *foldState {
	txs := e.txs.ByWallet(wallet)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].BlockTime < txs[j].BlockTime })

	state := &foldState{
		holdings: make(map[string]*holding),
		netFlow:  make(map[string]decimal.Decimal),
		flowAt:   make(map[string]int64),
	}
	for i := range txs {
		e.apply(state, &txs[i])
	}
	return state
}

func (e *Engine) apply(s *foldState, tx *domain.Transaction) {
	if tx.BlockTime > s.lastActivity {
		s.lastActivity = tx.BlockTime
	}

	flow := func(token string, amount decimal.Decimal) {
		if token == "" || amount.Sign() == 0 {
			return
		}
		s.netFlow[token] = s.netFlow[token].Add(amount)
		if tx.BlockTime > s.flowAt[token] {
			s.flowAt[token] = tx.BlockTime
		}
	}

	switch tx.Type {
	case domain.TxSwap:
		if tx.TokenIn != "" && tx.AmountIn.Sign() > 0 {
			h := s.get(tx.Protocol, domain.PositionSpot, tx.TokenIn, "")
			exit := unitUSD(tx, tx.AmountIn, tx.TokenOut, tx.AmountOut)
			if pnl := h.decrease(tx.AmountIn, exit); !pnl.IsZero() {
				s.realizations = append(s.realizations, realization{at: tx.BlockTime, pnl: pnl})
			}
			flow(tx.TokenIn, tx.AmountIn.Neg())
		}
		if tx.TokenOut != "" && tx.AmountOut.Sign() > 0 {
			h := s.get(tx.Protocol, domain.PositionSpot, tx.TokenOut, "")
			cost := unitUSD(tx, tx.AmountOut, tx.TokenIn, tx.AmountIn)
			h.increase(tx.AmountOut, cost)
			flow(tx.TokenOut, tx.AmountOut)
		}

	case domain.TxDeposit:
		h := s.get(tx.Protocol, domain.PositionLendingSupply, tx.TokenIn, "")
		h.increase(tx.AmountIn, unitUSD(tx, tx.AmountIn, "", decimal.Zero))

	case domain.TxWithdraw:
		h := s.get(tx.Protocol, domain.PositionLendingSupply, tx.TokenOut, "")
		exit := unitUSD(tx, tx.AmountOut, "", decimal.Zero)
		if pnl := h.decrease(tx.AmountOut, exit); !pnl.IsZero() {
			s.realizations = append(s.realizations, realization{at: tx.BlockTime, pnl: pnl})
		}

	case domain.TxBorrow:
		h := s.get(tx.Protocol, domain.PositionLendingBorrow, tx.TokenOut, "")
		h.increase(tx.AmountOut, unitUSD(tx, tx.AmountOut, "", decimal.Zero))

	case domain.TxRepay:
		// repaying debt shrinks the borrow position, no PnL event
		h := s.get(tx.Protocol, domain.PositionLendingBorrow, tx.TokenIn, "")
		h.decrease(tx.AmountIn, decimal.Zero)

	case domain.TxAddLiquidity:
		h := s.get(tx.Protocol, domain.PositionLP, tx.TokenIn, tx.Pool)
		h.increase(tx.AmountIn, unitUSD(tx, tx.AmountIn, "", decimal.Zero))

	case domain.TxRemoveLiquidity:
		h := s.get(tx.Protocol, domain.PositionLP, tx.TokenOut, tx.Pool)
		exit := unitUSD(tx, tx.AmountOut, "", decimal.Zero)
		if pnl := h.decrease(tx.AmountOut, exit); !pnl.IsZero() {
			s.realizations = append(s.realizations, realization{at: tx.BlockTime, pnl: pnl})
		}
	}
}

// Positions returns the wallet's open positions priced at current market,
// largest first. Unpriceable tokens stay listed with the flag set.
func (e *Engine) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	state := e.fold(wallet)
	now := e.now().UTC()

	positions := make([]domain.Position, 0, len(state.holdings))
	for _, h := range state.holdings {
		if h.amount.Sign() <= 0 {
			continue
		}

		pos := domain.Position{
			Wallet:     wallet,
			Protocol:   h.protocol,
			Type:       h.ptype,
			Token:      h.token,
			Pool:       h.pool,
			Amount:     h.amount,
			EntryPrice: h.entry,
			UpdatedAt:  now,
		}

		price, err := e.price(ctx, h.token)
		if err != nil {
			pos.PriceUnavailable = true
			pos.USDValue = decimal.Zero
			pos.Unrealized = decimal.Zero
		} else {
			pos.CurrentPrice = price
			pos.USDValue = price.Mul(h.amount)
			if h.entry.Sign() > 0 {
				pos.Unrealized = pos.PnL(price)
			}
		}
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		if !positions[i].USDValue.Equal(positions[j].USDValue) {
			return positions[i].USDValue.GreaterThan(positions[j].USDValue)
		}
		return positions[i].Key() < positions[j].Key()
	})
	return positions, nil
}

func (e *Engine) price(ctx context.Context, mint string) (decimal.Decimal, error) {
	symbol, ok := pricer.SymbolForMint(mint)
	if !ok {
		return decimal.Decimal{}, pricer.ErrPriceUnavailable
	}
	return e.pricer.GetPrice(ctx, symbol)
}

// PnL returns realized PnL per window plus current unrealized PnL.
func (e *Engine) PnL(ctx context.Context, wallet string) (domain.PnLBreakdown, error) {
	state := e.fold(wallet)
	now := e.now()

	breakdown := domain.PnLBreakdown{
		Wallet:      wallet,
		Realized24h: decimal.Zero,
		Realized7d:  decimal.Zero,
		Realized30d: decimal.Zero,
		RealizedAll: decimal.Zero,
		Unrealized:  decimal.Zero,
	}
	buckets := []struct {
		window domain.TimeWindow
		sum    *decimal.Decimal
	}{
		{domain.Window24h, &breakdown.Realized24h},
		{domain.Window7d, &breakdown.Realized7d},
		{domain.Window30d, &breakdown.Realized30d},
	}
	for _, r := range state.realizations {
		breakdown.RealizedAll = breakdown.RealizedAll.Add(r.pnl)
		age := now.Sub(time.UnixMilli(r.at))
		for _, b := range buckets {
			if d, bounded := b.window.Duration(); bounded && age <= d {
				*b.sum = b.sum.Add(r.pnl)
			}
		}
	}

	positions, err := e.Positions(ctx, wallet)
	if err != nil {
		return domain.PnLBreakdown{}, err
	}
	for _, pos := range positions {
		breakdown.Unrealized = breakdown.Unrealized.Add(pos.Unrealized)
	}
	return breakdown, nil
}

// Summary assembles the wallet's aggregate state. Wallets with no indexed
// transactions get the zero-value summary, never an error.
func (e *Engine) Summary(ctx context.Context, wallet string) (domain.WalletSummary, error) {
	state := e.fold(wallet)
	now := e.now().UTC()

	if len(state.holdings) == 0 && len(state.realizations) == 0 {
		return domain.EmptySummary(wallet, now), nil
	}

	positions, err := e.Positions(ctx, wallet)
	if err != nil {
		return domain.WalletSummary{}, err
	}
	pnl, err := e.PnL(ctx, wallet)
	if err != nil {
		return domain.WalletSummary{}, err
	}

	total := decimal.Zero
	largest := decimal.Zero
	protocolValue := make(map[domain.Protocol]decimal.Decimal)
	protocolSet := make(map[domain.Protocol]bool)

	for _, pos := range positions {
		protocolSet[pos.Protocol] = true
		if pos.Type == domain.PositionLendingBorrow {
			total = total.Sub(pos.USDValue)
			continue
		}
		total = total.Add(pos.USDValue)
		protocolValue[pos.Protocol] = protocolValue[pos.Protocol].Add(pos.USDValue)
		if pos.USDValue.GreaterThan(largest) {
			largest = pos.USDValue
		}
	}

	// concentration shares are measured against long value only
	longTotal := decimal.Zero
	largestProtocol := decimal.Zero
	for _, v := range protocolValue {
		longTotal = longTotal.Add(v)
		if v.GreaterThan(largestProtocol) {
			largestProtocol = v
		}
	}

	largestPct := decimal.Zero
	protocolPct := decimal.Zero
	if longTotal.Sign() > 0 {
		largestPct = largest.Div(longTotal)
		protocolPct = largestProtocol.Div(longTotal)
	}

	protocols := make([]string, 0, len(protocolSet))
	for p := range protocolSet {
		protocols = append(protocols, string(p))
	}
	sort.Strings(protocols)

	summary := domain.WalletSummary{
		Wallet:             wallet,
		TotalValueUSD:      total,
		Realized24h:        pnl.Realized24h,
		Realized7d:         pnl.Realized7d,
		Realized30d:        pnl.Realized30d,
		Unrealized:         pnl.Unrealized,
		LargestPositionPct: largestPct,
		ProtocolCount:      len(protocolSet),
		PositionCount:      len(positions),
		RiskScore:          riskScore(largestPct, protocolPct, len(protocolSet)),
		LastActivity:       state.lastActivity,
		Protocols:          protocols,
		UpdatedAt:          now,
	}
	return summary, nil
}

// riskScore blends position concentration, protocol concentration and a
// diversification penalty into a 0..100 score. Monotone in both
// concentrations.
func riskScore(largestPct, protocolPct decimal.Decimal, protocolCount int) int {
	score := largestPct.Mul(decimal.NewFromInt(55)).
		Add(protocolPct.Mul(decimal.NewFromInt(25)))

	switch protocolCount {
	case 0:
		return 0
	case 1:
		score = score.Add(decimal.NewFromInt(20))
	case 2:
		score = score.Add(decimal.NewFromInt(10))
	case 3:
		score = score.Add(decimal.NewFromInt(5))
	}

	n := int(score.Round(0).IntPart())
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Exposures reports the wallet's net directional stance per priceable asset.
func (e *Engine) Exposures(ctx context.Context, wallet string) (map[string]Exposure, error) {
	state := e.fold(wallet)

	exposures := make(map[string]Exposure)
	for mint, flow := range state.netFlow {
		if flow.Sign() == 0 {
			continue
		}
		symbol, ok := pricer.SymbolForMint(mint)
		if !ok || pricer.IsStablecoin(symbol) {
			continue
		}
		price, err := e.pricer.GetPrice(ctx, symbol)
		if err != nil {
			e.logger.Debug("exposure skipped, no price",
				zap.String("wallet", wallet),
				zap.String("symbol", symbol))
			continue
		}

		exposures[symbol] = Exposure{
			Symbol:       symbol,
			Direction:    flow.Sign(),
			USD:          flow.Abs().Mul(price),
			LastActivity: state.flowAt[mint],
		}
	}
	return exposures, nil
}
