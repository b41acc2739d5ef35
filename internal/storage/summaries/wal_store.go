// Package summaries persists the latest WalletSummary per wallet. Summaries
// are projections of the transaction log; the store keeps only the most
// recent recomputation for each wallet.
package summaries

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cortex/internal/domain"
)

const (
	DefaultDir = "./wal/summaries"

	segmentLimit = 500
	maxSegments  = 10

	summaryKeyPrefix = "summary_"
)

// WALStore holds the latest summary per wallet, backed by a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	byWallet map[string]domain.WalletSummary
}

// NewWALStore opens the WAL and replays it; the last record per wallet wins.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "summary_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init summary WAL")
	}

	s := &WALStore{
		wal:      wal,
		byWallet: make(map[string]domain.WalletSummary),
	}

	current := wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, summaryKeyPrefix) {
			continue
		}

		var summary domain.WalletSummary
		if err := json.Unmarshal(payload, &summary); err != nil {
			return nil, errors.Wrap(err, "decode summary record")
		}
		s.byWallet[summary.Wallet] = summary
	}

	return s, nil
}

// Save replaces the wallet's summary.
func (s *WALStore) Save(summary domain.WalletSummary) error {
	if s == nil || s.wal == nil {
		return errors.New("summary store is not initialized")
	}
	if summary.Wallet == "" {
		return errors.New("summary wallet is required")
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, summaryKeyPrefix+summary.Wallet, payload); err != nil {
		return errors.Wrap(err, "append summary")
	}

	s.byWallet[summary.Wallet] = summary
	return nil
}

// Get returns the latest stored summary for the wallet.
func (s *WALStore) Get(wallet string) (domain.WalletSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.byWallet[wallet]
	return summary, ok
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("summary store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
