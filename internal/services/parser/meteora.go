package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// meteoraHandler decodes Meteora DLMM events: swaps and liquidity changes.
type meteoraHandler struct{}

func (meteoraHandler) protocol() domain.Protocol { return domain.ProtocolMeteora }

func (meteoraHandler) programIDs() []string {
	return []string{
		"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo", // Meteora DLMM
	}
}

func (meteoraHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "meteora")
}

func (h meteoraHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
	switch eventTypeUpper(ev) {
	case "SWAP":
		return parseSwap(ev, wallet, h.protocol())
	case "ADD_LIQUIDITY":
		return parseLiquidity(ev, wallet, h.protocol(), domain.TxAddLiquidity)
	case "REMOVE_LIQUIDITY":
		return parseLiquidity(ev, wallet, h.protocol(), domain.TxRemoveLiquidity)
	default:
		return nil, ErrUntrackedEvent
	}
}
