package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// jupiterHandler decodes Jupiter aggregator events. Jupiter emits swaps only.
type jupiterHandler struct{}

func (jupiterHandler) protocol() domain.Protocol { return domain.ProtocolJupiter }

func (jupiterHandler) programIDs() []string {
	return []string{
		"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", // Jupiter v6
		"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB", // Jupiter v4
	}
}

func (jupiterHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "jupiter")
}

func (h jupiterHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
	switch eventTypeUpper(ev) {
	case "SWAP":
		return parseSwap(ev, wallet, h.protocol())
	case "TRANSFER":
		return nil, ErrUntrackedEvent
	default:
		return nil, ErrUntrackedEvent
	}
}
