// Package parser normalizes raw decoded events from the six supported DeFi
// protocols into canonical transactions. Dispatch is a fixed table keyed by
// program id with a decoder-type fallback; every handler owns its protocol's
// event sub-shapes.
package parser

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
)

var (
	// ErrUnsupportedProtocol marks events from programs outside the
	// supported set. Callers skip and continue.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	// ErrMalformed marks events whose payload cannot be decoded into a
	// transaction (missing tokens, unparsable amounts). Callers skip and
	// continue.
	ErrMalformed = errors.New("malformed event")
	// ErrUntrackedEvent marks event types the pipeline deliberately ignores,
	// like plain transfers.
	ErrUntrackedEvent = errors.New("untracked event type")
)

type handler interface {
	protocol() domain.Protocol
	programIDs() []string
	matchesDecoder(decoder string) bool
	parse(ev *RawEvent, wallet string) (*domain.Transaction, error)
}

// Registry maps raw events to protocol handlers.
type Registry struct {
	logger    *zap.Logger
	byProgram map[string]handler
	handlers  []handler
}

// NewRegistry builds the registry with all six protocol handlers installed.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:    logger,
		byProgram: make(map[string]handler),
	}
	for _, h := range []handler{
		jupiterHandler{},
		raydiumHandler{},
		kaminoHandler{},
		meteoraHandler{},
		orcaHandler{},
		pumpFunHandler{},
	} {
		r.register(h)
	}
	return r
}

func (r *Registry) register(h handler) {
	r.handlers = append(r.handlers, h)
	for _, id := range h.programIDs() {
		r.byProgram[id] = h
	}
}

// Parse maps one raw event to exactly one canonical transaction or rejects it
// with a typed error. It never panics on malformed payloads.
func (r *Registry) Parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
	if ev == nil || ev.TxSignature == "" {
		return nil, ErrMalformed
	}

	h := r.resolve(ev)
	if h == nil {
		r.logger.Debug("no handler for event",
			zap.String("signature", ev.TxSignature),
			zap.String("decoder_type", ev.DecoderType),
			zap.String("program_id", ev.ProgramID))
		return nil, ErrUnsupportedProtocol
	}

	tx, err := h.parse(ev, wallet)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("event parsed",
		zap.String("signature", tx.Signature),
		zap.String("protocol", tx.Protocol.String()),
		zap.String("tx_type", tx.Type.String()))
	return tx, nil
}

// resolve looks up the handler by program id first, then by decoder type.
func (r *Registry) resolve(ev *RawEvent) handler {
	if h, ok := r.byProgram[ev.ProgramID]; ok {
		return h
	}
	decoder := strings.ToLower(ev.DecoderType)
	for _, h := range r.handlers {
		if h.matchesDecoder(decoder) {
			return h
		}
	}
	return nil
}

// parseSwap builds a swap transaction shared by all DEX handlers.
// Token legs come from the dedicated in/out fields when present; otherwise the
// event-level mint plus source/destination direction identifies the leg.
func parseSwap(ev *RawEvent, wallet string, protocol domain.Protocol) (*domain.Transaction, error) {
	tx, err := domain.NewTransaction(ev.TxSignature, wallet, protocol, domain.TxSwap)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	if ev.TokenIn != nil {
		amount, ok := ev.TokenIn.Decimal()
		if !ok {
			return nil, errors.Wrap(ErrMalformed, "swap input amount")
		}
		tx.TokenIn = ev.TokenIn.Mint
		tx.AmountIn = amount
	} else if ev.Mint != "" && ev.Source == wallet {
		amount, ok := ev.amount()
		if !ok {
			return nil, errors.Wrap(ErrMalformed, "swap input amount")
		}
		tx.TokenIn = ev.Mint
		tx.AmountIn = amount
	}

	if ev.TokenOut != nil {
		amount, ok := ev.TokenOut.Decimal()
		if !ok {
			return nil, errors.Wrap(ErrMalformed, "swap output amount")
		}
		tx.TokenOut = ev.TokenOut.Mint
		tx.AmountOut = amount
	} else if ev.Mint != "" && ev.Destination == wallet {
		amount, ok := ev.amount()
		if !ok {
			return nil, errors.Wrap(ErrMalformed, "swap output amount")
		}
		tx.TokenOut = ev.Mint
		tx.AmountOut = amount
	}

	if tx.TokenIn == "" && tx.TokenOut == "" {
		return nil, errors.Wrap(ErrMalformed, "swap with no identifiable tokens")
	}

	tx.Pool = ev.Pool
	tx.BlockTime = ev.blockTimeMilli()
	tx.Slot = ev.Slot
	return tx, nil
}

// parseLiquidity builds an add/remove liquidity transaction. The LP leg is
// keyed by the pool address.
func parseLiquidity(ev *RawEvent, wallet string, protocol domain.Protocol, txType domain.TransactionType) (*domain.Transaction, error) {
	amount, ok := ev.amount()
	if !ok {
		return nil, errors.Wrap(ErrMalformed, "liquidity amount")
	}
	if ev.Mint == "" {
		return nil, errors.Wrap(ErrMalformed, "liquidity event without mint")
	}

	tx, err := domain.NewTransaction(ev.TxSignature, wallet, protocol, txType)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	if txType == domain.TxAddLiquidity {
		tx.TokenIn = ev.Mint
		tx.AmountIn = amount
	} else {
		tx.TokenOut = ev.Mint
		tx.AmountOut = amount
	}
	tx.Pool = ev.Pool
	tx.BlockTime = ev.blockTimeMilli()
	tx.Slot = ev.Slot
	return tx, nil
}

// parseLending builds a lending transaction. Deposits and repays flow tokens
// into the protocol (token_in); withdrawals and borrows flow out (token_out).
func parseLending(ev *RawEvent, wallet string, protocol domain.Protocol, txType domain.TransactionType) (*domain.Transaction, error) {
	amount, ok := ev.amount()
	if !ok {
		return nil, errors.Wrap(ErrMalformed, "lending amount")
	}
	if ev.Mint == "" {
		return nil, errors.Wrap(ErrMalformed, "lending event without mint")
	}

	tx, err := domain.NewTransaction(ev.TxSignature, wallet, protocol, txType)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	switch txType {
	case domain.TxDeposit, domain.TxRepay:
		tx.TokenIn = ev.Mint
		tx.AmountIn = amount
	case domain.TxWithdraw, domain.TxBorrow:
		tx.TokenOut = ev.Mint
		tx.AmountOut = amount
	}
	tx.BlockTime = ev.blockTimeMilli()
	tx.Slot = ev.Slot
	return tx, nil
}

func eventTypeUpper(ev *RawEvent) string {
	return strings.ToUpper(ev.EventType)
}
