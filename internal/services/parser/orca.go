package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// orcaHandler decodes Orca Whirlpool events: swaps and liquidity changes.
type orcaHandler struct{}

func (orcaHandler) protocol() domain.Protocol { return domain.ProtocolOrca }

func (orcaHandler) programIDs() []string {
	return []string{
		"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc", // Orca Whirlpool
	}
}

func (orcaHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "orca") || strings.Contains(decoder, "whirlpool")
}

func (h orcaHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
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
