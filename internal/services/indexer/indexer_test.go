package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/parser"
)

const (
	walletA = "DRiP2Pn2K6fuMLKQmt5rZWyHiUZ6WK3GChEySUpHSS4x"
	walletB = "4Nd1mYvNmPW6FVJBVdbYKnPBJDPsBCDwTHioiBgRA2oo"
)

type memStore struct {
	mu  sync.Mutex
	txs map[string]domain.Transaction
}

func newMemStore() *memStore {
	return &memStore{txs: make(map[string]domain.Transaction)}
}

func (s *memStore) Upsert(tx domain.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.Signature]; ok {
		return false, nil
	}
	s.txs[tx.Signature] = tx
	return true, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

type stubHistory struct {
	events []*parser.RawEvent
	delay  time.Duration
	err    error
}

func (s *stubHistory) FetchTransactions(ctx context.Context, _ string, _ time.Duration) ([]*parser.RawEvent, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.events, s.err
}

type stubStream struct {
	events []*parser.RawEvent
	err    error
}

func (s *stubStream) Subscribe(ctx context.Context, _ string, out chan<- *parser.RawEvent) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func swapEvent(wallet, signature string, blockTime int64) *parser.RawEvent {
	return &parser.RawEvent{
		TxSignature: signature,
		Slot:        100,
		BlockTime:   blockTime,
		DecoderType: "JUPITER",
		EventType:   "SWAP",
		FeePayer:    wallet,
		TokenIn: &parser.TokenAmount{
			Mint:      "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			RawAmount: "150000000",
			Decimals:  6,
			Owner:     wallet,
		},
		TokenOut: &parser.TokenAmount{
			Mint:      "So11111111111111111111111111111111111111112",
			RawAmount: "1000000000",
			Decimals:  9,
			Owner:     wallet,
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newIndexer(t *testing.T, store Store, history HistorySource, stream StreamSource, opts ...Option) *Indexer {
	t.Helper()

	base := []Option{
		WithLiveWindow(200 * time.Millisecond),
		WithStopGrace(time.Second),
	}
	return New(zap.NewNop(), parser.NewRegistry(zap.NewNop()), store, history, stream, append(base, opts...)...)
}

func findSub(infos []SubscriptionInfo, wallet string) (SubscriptionInfo, bool) {
	for _, info := range infos {
		if info.Wallet == wallet {
			return info, true
		}
	}
	return SubscriptionInfo{}, false
}

func TestIndexer_StartValidation(t *testing.T) {
	ix := newIndexer(t, newMemStore(), &stubHistory{}, nil)
	defer ix.StopAll()

	require.ErrorIs(t, ix.Start(context.Background(), "bad wallet"), domain.ErrInvalidAddress)

	require.NoError(t, ix.Start(context.Background(), walletA))
	require.ErrorIs(t, ix.Start(context.Background(), walletA), ErrAlreadyIndexed)
}

func TestIndexer_BackfillIngestsAndSkipsParseErrors(t *testing.T) {
	store := newMemStore()
	history := &stubHistory{events: []*parser.RawEvent{
		swapEvent(walletA, "sig-1", 1700000000),
		swapEvent(walletA, "sig-2", 1700000100),
		{TxSignature: "sig-transfer", DecoderType: "JUPITER", EventType: "TRANSFER", FeePayer: walletA},
	}}

	ix := newIndexer(t, store, history, nil)
	defer ix.StopAll()

	require.NoError(t, ix.Start(context.Background(), walletA))

	waitFor(t, 2*time.Second, func() bool { return store.count() == 2 })

	waitFor(t, 2*time.Second, func() bool {
		info, ok := findSub(ix.List(), walletA)
		return ok && info.EventsProcessed == 2 && info.ParseErrors == 1
	})

	info, ok := findSub(ix.List(), walletA)
	require.True(t, ok)
	require.Equal(t, StatusActive, info.Status)
}

func TestIndexer_ReingestIsIdempotent(t *testing.T) {
	store := newMemStore()
	history := &stubHistory{events: []*parser.RawEvent{
		swapEvent(walletA, "sig-1", 1700000000),
	}}

	ix := newIndexer(t, store, history, nil)

	require.NoError(t, ix.Start(context.Background(), walletA))
	waitFor(t, 2*time.Second, func() bool { return store.count() == 1 })
	require.NoError(t, ix.Stop(walletA))

	// same history replayed on a fresh subscription
	require.NoError(t, ix.Start(context.Background(), walletA))
	waitFor(t, 2*time.Second, func() bool {
		info, ok := findSub(ix.List(), walletA)
		return ok && info.EventsProcessed >= 1
	})
	require.NoError(t, ix.Stop(walletA))

	require.Equal(t, 1, store.count())
}

func TestIndexer_StopMidBackfill(t *testing.T) {
	history := &stubHistory{delay: 10 * time.Second}

	ix := newIndexer(t, newMemStore(), history, nil)

	require.NoError(t, ix.Start(context.Background(), walletA))

	start := time.Now()
	require.NoError(t, ix.Stop(walletA))
	require.Less(t, time.Since(start), 3*time.Second)

	_, ok := findSub(ix.List(), walletA)
	require.False(t, ok)

	require.ErrorIs(t, ix.Stop(walletA), ErrNotIndexed)
}

func TestIndexer_LiveStreamFeedsStore(t *testing.T) {
	store := newMemStore()
	stream := &stubStream{events: []*parser.RawEvent{
		swapEvent(walletA, "sig-live-1", 1700000200),
	}}

	ix := newIndexer(t, store, &stubHistory{}, stream)
	defer ix.StopAll()

	require.NoError(t, ix.Start(context.Background(), walletA))

	waitFor(t, 2*time.Second, func() bool { return store.count() == 1 })

	// the activation window expiring is a normal end, not a degradation
	waitFor(t, 2*time.Second, func() bool {
		info, ok := findSub(ix.List(), walletA)
		return ok && info.Status == StatusActive
	})
}

func TestIndexer_StreamFailureDegrades(t *testing.T) {
	stream := &stubStream{err: errors.New("reconnect attempts exhausted")}

	ix := newIndexer(t, newMemStore(), &stubHistory{}, stream, WithLiveWindow(5*time.Second))
	defer ix.StopAll()

	require.NoError(t, ix.Start(context.Background(), walletA))

	waitFor(t, 2*time.Second, func() bool {
		info, ok := findSub(ix.List(), walletA)
		return ok && info.Status == StatusDegraded
	})
}

type routingStream struct {
	byWallet map[string]StreamSource
}

func (r *routingStream) Subscribe(ctx context.Context, wallet string, out chan<- *parser.RawEvent) error {
	return r.byWallet[wallet].Subscribe(ctx, wallet, out)
}

func TestIndexer_PerWalletIsolation(t *testing.T) {
	store := newMemStore()
	stream := &routingStream{byWallet: map[string]StreamSource{
		walletA: &stubStream{err: errors.New("reconnect attempts exhausted")},
		walletB: &stubStream{events: []*parser.RawEvent{swapEvent(walletB, "sig-b-1", 1700000300)}},
	}}

	ix := newIndexer(t, store, &stubHistory{}, stream, WithLiveWindow(5*time.Second))
	defer ix.StopAll()

	require.NoError(t, ix.Start(context.Background(), walletA))
	require.NoError(t, ix.Start(context.Background(), walletB))

	// A's stream failure degrades A only; B keeps ingesting
	waitFor(t, 2*time.Second, func() bool {
		a, okA := findSub(ix.List(), walletA)
		return okA && a.Status == StatusDegraded
	})
	waitFor(t, 2*time.Second, func() bool { return store.count() == 1 })

	b, ok := findSub(ix.List(), walletB)
	require.True(t, ok)
	require.Equal(t, StatusActive, b.Status)

	require.NoError(t, ix.Stop(walletA))
	_, ok = findSub(ix.List(), walletB)
	require.True(t, ok)
}
