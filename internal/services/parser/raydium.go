package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// raydiumHandler decodes Raydium AMM, CLMM and router events: swaps plus
// liquidity adds and removes.
type raydiumHandler struct{}

func (raydiumHandler) protocol() domain.Protocol { return domain.ProtocolRaydium }

func (raydiumHandler) programIDs() []string {
	return []string{
		"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", // Raydium AMM v4
		"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK", // Raydium CLMM
		"routeUGWgWzqBWFcrCfv8tritsqukccJPu3q5GPP3xS",  // Raydium Router
	}
}

func (raydiumHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "raydium")
}

func (h raydiumHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
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
