// Package domain holds the validated core types shared by every service:
// protocols, transactions, positions, summaries and conviction scores.
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Protocol identifies one of the supported DeFi protocols.
type Protocol string

const (
	ProtocolJupiter Protocol = "jupiter"
	ProtocolRaydium Protocol = "raydium"
	ProtocolKamino  Protocol = "kamino"
	ProtocolMeteora Protocol = "meteora"
	ProtocolOrca    Protocol = "orca"
	ProtocolPumpFun Protocol = "pumpfun"
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{
	ProtocolJupiter,
	ProtocolRaydium,
	ProtocolKamino,
	ProtocolMeteora,
	ProtocolOrca,
	ProtocolPumpFun,
}

func (p Protocol) String() string {
	return string(p)
}

// ParseProtocol normalizes a protocol name, accepting the aliases seen in
// decoder output.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jupiter":
		return ProtocolJupiter, nil
	case "raydium":
		return ProtocolRaydium, nil
	case "kamino":
		return ProtocolKamino, nil
	case "meteora":
		return ProtocolMeteora, nil
	case "orca":
		return ProtocolOrca, nil
	case "pumpfun", "pump_fun", "pump.fun":
		return ProtocolPumpFun, nil
	default:
		return "", errors.Errorf("unknown protocol %q", s)
	}
}

// TransactionType classifies what a transaction did.
type TransactionType string

const (
	TxSwap            TransactionType = "swap"
	TxDeposit         TransactionType = "deposit"
	TxWithdraw        TransactionType = "withdraw"
	TxBorrow          TransactionType = "borrow"
	TxRepay           TransactionType = "repay"
	TxAddLiquidity    TransactionType = "add_liquidity"
	TxRemoveLiquidity TransactionType = "remove_liquidity"
)

func (t TransactionType) String() string {
	return string(t)
}

// PositionType classifies how a holding is deployed.
type PositionType string

const (
	PositionSpot          PositionType = "spot"
	PositionLendingSupply PositionType = "lending_supply"
	PositionLendingBorrow PositionType = "lending_borrow"
	PositionLP            PositionType = "lp"
)
