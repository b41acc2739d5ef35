package parser

import (
	"strings"

	"github.com/vadiminshakov/cortex/internal/domain"
)

// kaminoHandler decodes Kamino lending events. Unlike the DEX protocols,
// Kamino emits supply/borrow/withdraw/repay sub-types instead of swaps.
type kaminoHandler struct{}

func (kaminoHandler) protocol() domain.Protocol { return domain.ProtocolKamino }

func (kaminoHandler) programIDs() []string {
	return []string{
		"KLend2g3cP87ber41L3rfCMYbkK3YqPjSSahS1E3HVK",  // Kamino Lending
		"6LtLpnUFNByNXLyCoK9wA2MykKAmQNZKBdY8s47dehDc", // Kamino Liquidity
		"kvauTFR8qm1dhniz6pYuBZkuene3Hfrs1VQhVRgCNrr",  // Kamino Vaults
	}
}

func (kaminoHandler) matchesDecoder(decoder string) bool {
	return strings.Contains(decoder, "kamino")
}

func (h kaminoHandler) parse(ev *RawEvent, wallet string) (*domain.Transaction, error) {
	switch eventTypeUpper(ev) {
	case "DEPOSIT", "SUPPLY":
		return parseLending(ev, wallet, h.protocol(), domain.TxDeposit)
	case "WITHDRAW", "REDEEM":
		return parseLending(ev, wallet, h.protocol(), domain.TxWithdraw)
	case "BORROW":
		return parseLending(ev, wallet, h.protocol(), domain.TxBorrow)
	case "REPAY":
		return parseLending(ev, wallet, h.protocol(), domain.TxRepay)
	default:
		return nil, ErrUntrackedEvent
	}
}
