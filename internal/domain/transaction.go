package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Transaction is one normalized on-chain action by a tracked wallet. The
// signature is globally unique and is the idempotency key for storage.
type Transaction struct {
	Signature string          `json:"signature"`
	Wallet    string          `json:"wallet"`
	Protocol  Protocol        `json:"protocol"`
	Type      TransactionType `json:"tx_type"`
	TokenIn   string          `json:"token_in,omitempty"`
	TokenOut  string          `json:"token_out,omitempty"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	USDValue  decimal.Decimal `json:"usd_value"`
	Pool      string          `json:"pool,omitempty"`
	// BlockTime is the on-chain timestamp in UTC milliseconds.
	BlockTime int64  `json:"block_time"`
	Slot      uint64 `json:"slot"`
}

// NewTransaction builds a transaction with the required identity fields
// validated.
func NewTransaction(signature, wallet string, protocol Protocol, txType TransactionType) (*Transaction, error) {
	if signature == "" {
		return nil, errors.New("transaction signature is required")
	}
	if wallet == "" {
		return nil, errors.New("transaction wallet is required")
	}
	return &Transaction{
		Signature: signature,
		Wallet:    wallet,
		Protocol:  protocol,
		Type:      txType,
	}, nil
}

// Time converts the block time to a time.Time in UTC.
func (t *Transaction) Time() time.Time {
	return time.UnixMilli(t.BlockTime).UTC()
}
