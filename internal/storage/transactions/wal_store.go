// Package transactions persists the canonical transaction log in a WAL and
// serves reads from an in-memory index rebuilt on open. The write path is an
// upsert keyed by transaction signature, so replays from the backfill and the
// live stream are idempotent.
package transactions

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cortex/internal/domain"
)

const (
	DefaultDir = "./wal/transactions"

	segmentLimit = 1000
	maxSegments  = 100

	txKeyPrefix = "tx_"
)

// WALStore is the durable transaction log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	bySignature map[string]domain.Transaction
	byWallet    map[string][]string
}

// NewWALStore opens the WAL and rebuilds the in-memory indexes from it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "txlog_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init transaction WAL")
	}

	s := &WALStore{
		wal:         wal,
		bySignature: make(map[string]domain.Transaction),
		byWallet:    make(map[string][]string),
	}
	if err := s.recover(); err != nil {
		return nil, errors.Wrap(err, "recover transaction log")
	}
	return s, nil
}

func (s *WALStore) recover() error {
	current := s.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if len(key) <= len(txKeyPrefix) || key[:len(txKeyPrefix)] != txKeyPrefix {
			continue
		}

		var tx domain.Transaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return errors.Wrap(err, "decode transaction record")
		}
		s.index(tx)
	}
	return nil
}

// index must be called with the write lock held (or before publication).
func (s *WALStore) index(tx domain.Transaction) {
	if _, ok := s.bySignature[tx.Signature]; !ok {
		s.byWallet[tx.Wallet] = append(s.byWallet[tx.Wallet], tx.Signature)
	}
	s.bySignature[tx.Signature] = tx
}

// Upsert stores the transaction keyed by signature. Returns false without
// writing when the signature is already present, making replays and
// out-of-order delivery across the backfill/live boundary safe.
func (s *WALStore) Upsert(tx domain.Transaction) (bool, error) {
	if s == nil || s.wal == nil {
		return false, errors.New("transaction store is not initialized")
	}
	if tx.Signature == "" {
		return false, errors.New("transaction signature is required")
	}
	if tx.Wallet == "" {
		return false, errors.New("transaction wallet is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySignature[tx.Signature]; ok {
		return false, nil
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return false, errors.Wrap(err, "marshal transaction")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, txKeyPrefix+tx.Signature, payload); err != nil {
		return false, errors.Wrap(err, "append transaction")
	}

	s.index(tx)
	return true, nil
}

// ByWallet returns the wallet's transactions ordered by block time ascending.
func (s *WALStore) ByWallet(wallet string) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sigs := s.byWallet[wallet]
	txs := make([]domain.Transaction, 0, len(sigs))
	for _, sig := range sigs {
		txs = append(txs, s.bySignature[sig])
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].BlockTime == txs[j].BlockTime {
			return txs[i].Slot < txs[j].Slot
		}
		return txs[i].BlockTime < txs[j].BlockTime
	})
	return txs
}

// Wallets lists every wallet with at least one stored transaction.
func (s *WALStore) Wallets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]string, 0, len(s.byWallet))
	for w := range s.byWallet {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets
}

// Count returns the number of stored transactions.
func (s *WALStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bySignature)
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("transaction store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
