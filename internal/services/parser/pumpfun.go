package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// pumpFunHandler decodes Pump.fun bonding-curve events. Buys and sells both
// surface as swaps.
type pumpFunHandler struct{}

func (pumpFunHandler) protocol() domain.Protocol { return domain.ProtocolPumpFun }

func (pumpFunHandler) programIDs() []string {
	return []string{
		"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P", // Pump.fun
	}
}

func (pumpFunHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "pump")
}

func (h pumpFunHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
	switch eventTypeUpper(ev) {
	case "SWAP", "BUY", "SELL":
		return parseSwap(ev, wallet, h.protocol())
	default:
		return nil, ErrUntrackedEvent
	}
}
