// Package indexer runs the hybrid ingestion pipeline per tracked wallet:
// a historical backfill and a bounded live stream feed one processor that
// normalizes events and upserts them into the transaction log. Ingestion is
// idempotent end to end because the store dedupes by signature.
package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/parser"
)

var (
	// ErrAlreadyIndexed is returned on Start for a wallet that already has a
	// subscription.
	ErrAlreadyIndexed = errors.New("wallet already indexed")
	// ErrNotIndexed is returned on Stop for a wallet with no subscription.
	ErrNotIndexed = errors.New("wallet not indexed")
)

// Status reports the health of a subscription.
type Status string

const (
	// StatusActive means backfill and live ingestion are operating normally.
	StatusActive Status = "active"
	// StatusDegraded means live reconnection was exhausted; the subscription
	// stays registered and serves whatever was ingested.
	StatusDegraded Status = "degraded"
)

const (
	defaultLookback      = 30 * 24 * time.Hour
	defaultLiveWindow    = 60 * time.Second
	defaultMaxLiveEvents = 1000
	defaultStopGrace     = 5 * time.Second

	eventBuffer = 256
)

// HistorySource fetches a wallet's past events.
type HistorySource interface {
	FetchTransactions(ctx context.Context, wallet string, lookback time.Duration) ([]*parser.RawEvent, error)
}

// StreamSource delivers live events for a wallet until ctx ends.
type StreamSource interface {
	Subscribe(ctx context.Context, wallet string, out chan<- *parser.RawEvent) error
}

// Store persists normalized transactions.
type Store interface {
	Upsert(tx domain.Transaction) (bool, error)
}

// Subscription tracks one wallet's ingestion pipeline.
type Subscription struct {
	wallet    string
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu          sync.Mutex
	status      Status
	processed   int
	parseErrors int
}

func (s *Subscription) markDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusDegraded
}

func (s *Subscription) addProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
}

func (s *Subscription) addParseError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseErrors++
}

func (s *Subscription) snapshot() SubscriptionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriptionInfo{
		Wallet:          s.wallet,
		StartedAt:       s.startedAt,
		Status:          s.status,
		EventsProcessed: s.processed,
		ParseErrors:     s.parseErrors,
	}
}

// SubscriptionInfo is the externally visible state of a subscription.
type SubscriptionInfo struct {
	Wallet          string    `json:"wallet"`
	StartedAt       time.Time `json:"started_at"`
	Status          Status    `json:"status"`
	EventsProcessed int       `json:"events_processed"`
	ParseErrors     int       `json:"parse_errors"`
}

// Indexer owns the subscription registry.
type Indexer struct {
	logger  *zap.Logger
	parser  *parser.Registry
	store   Store
	history HistorySource
	stream  StreamSource

	lookback      time.Duration
	liveWindow    time.Duration
	maxLiveEvents int
	stopGrace     time.Duration

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// Option configures the Indexer.
type Option func(*Indexer)

// WithLookback sets the backfill horizon.
func WithLookback(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.lookback = d
	}
}

// WithLiveWindow bounds how long a live stream stays attached per activation.
func WithLiveWindow(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.liveWindow = d
	}
}

// WithMaxLiveEvents caps live events per activation.
func WithMaxLiveEvents(n int) Option {
	return func(ix *Indexer) {
		ix.maxLiveEvents = n
	}
}

// WithStopGrace bounds how long Stop waits for pipeline goroutines.
func WithStopGrace(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.stopGrace = d
	}
}

// New builds an Indexer. stream may be nil, leaving backfill-only ingestion.
func New(logger *zap.Logger, registry *parser.Registry, store Store, history HistorySource, stream StreamSource, opts ...Option) *Indexer {
	ix := &Indexer{
		logger:        logger,
		parser:        registry,
		store:         store,
		history:       history,
		stream:        stream,
		lookback:      defaultLookback,
		liveWindow:    defaultLiveWindow,
		maxLiveEvents: defaultMaxLiveEvents,
		stopGrace:     defaultStopGrace,
		subs:          make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Start begins indexing the wallet. The returned error is ErrAlreadyIndexed
// for duplicates and a validation error for malformed addresses.
func (ix *Indexer) Start(ctx context.Context, wallet string) error {
	if err := domain.ValidateAddress(wallet); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)

	ix.mu.Lock()
	if _, ok := ix.subs[wallet]; ok {
		ix.mu.Unlock()
		cancel()
		return errors.Wrapf(ErrAlreadyIndexed, "wallet %s", wallet)
	}
	sub := &Subscription{
		wallet:    wallet,
		startedAt: time.Now(),
		cancel:    cancel,
		status:    StatusActive,
	}
	ix.subs[wallet] = sub
	ix.mu.Unlock()

	events := make(chan *parser.RawEvent, eventBuffer)

	sub.wg.Add(2)
	go func() {
		defer sub.wg.Done()
		defer close(events)
		ix.ingest(subCtx, sub, events)
	}()
	go func() {
		defer sub.wg.Done()
		ix.process(sub, events)
	}()

	ix.logger.Info("indexing started", zap.String("wallet", wallet))
	return nil
}

// ingest runs the backfill and then the bounded live window.
func (ix *Indexer) ingest(ctx context.Context, sub *Subscription, events chan<- *parser.RawEvent) {
	backfill, err := ix.history.FetchTransactions(ctx, sub.wallet, ix.lookback)
	if err != nil {
		if ctx.Err() == nil {
			ix.logger.Warn("backfill failed",
				zap.String("wallet", sub.wallet),
				zap.Error(err))
		}
	}
	for _, ev := range backfill {
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}

	if ix.stream == nil || ctx.Err() != nil {
		return
	}
	ix.runLive(ctx, sub, events)
}

// runLive attaches the live stream for at most liveWindow / maxLiveEvents.
// Window expiry is a normal end; only reconnect exhaustion degrades the
// subscription.
func (ix *Indexer) runLive(ctx context.Context, sub *Subscription, events chan<- *parser.RawEvent) {
	liveCtx, cancel := context.WithTimeout(ctx, ix.liveWindow)
	defer cancel()

	liveCh := make(chan *parser.RawEvent, eventBuffer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ix.stream.Subscribe(liveCtx, sub.wallet, liveCh)
	}()

	forwarded := 0
	for {
		select {
		case ev := <-liveCh:
			select {
			case events <- ev:
				forwarded++
			case <-ctx.Done():
				cancel()
				<-errCh
				return
			}
			if forwarded >= ix.maxLiveEvents {
				cancel()
				<-errCh
				return
			}
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				sub.markDegraded()
				ix.logger.Warn("live stream degraded",
					zap.String("wallet", sub.wallet),
					zap.Error(err))
			}
			// flush whatever the stream buffered before it ended
			for {
				select {
				case ev := <-liveCh:
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				default:
					return
				}
			}
		}
	}
}

// process drains the event channel into the store. Parse failures are counted
// and skipped; they never terminate the pipeline.
func (ix *Indexer) process(sub *Subscription, events <-chan *parser.RawEvent) {
	for ev := range events {
		tx, err := ix.parser.Parse(ev, sub.wallet)
		if err != nil {
			sub.addParseError()
			ix.logger.Debug("event skipped",
				zap.String("wallet", sub.wallet),
				zap.Error(err))
			continue
		}

		if _, err := ix.store.Upsert(*tx); err != nil {
			ix.logger.Error("store upsert failed",
				zap.String("wallet", sub.wallet),
				zap.String("signature", tx.Signature),
				zap.Error(err))
			continue
		}
		sub.addProcessed()
	}
}

// Stop cancels the wallet's pipeline and waits up to the grace period for it
// to drain.
func (ix *Indexer) Stop(wallet string) error {
	ix.mu.Lock()
	sub, ok := ix.subs[wallet]
	if !ok {
		ix.mu.Unlock()
		return errors.Wrapf(ErrNotIndexed, "wallet %s", wallet)
	}
	delete(ix.subs, wallet)
	ix.mu.Unlock()

	sub.cancel()

	done := make(chan struct{})
	go func() {
		sub.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ix.stopGrace):
		ix.logger.Warn("stop grace period expired", zap.String("wallet", wallet))
	}

	ix.logger.Info("indexing stopped", zap.String("wallet", wallet))
	return nil
}

// StopAll stops every subscription, used at shutdown.
func (ix *Indexer) StopAll() {
	ix.mu.RLock()
	wallets := make([]string, 0, len(ix.subs))
	for w := range ix.subs {
		wallets = append(wallets, w)
	}
	ix.mu.RUnlock()

	for _, w := range wallets {
		if err := ix.Stop(w); err != nil {
			ix.logger.Warn("stop failed", zap.String("wallet", w), zap.Error(err))
		}
	}
}

// List returns a snapshot of all subscriptions.
func (ix *Indexer) List() []SubscriptionInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	infos := make([]SubscriptionInfo, 0, len(ix.subs))
	for _, sub := range ix.subs {
		infos = append(infos, sub.snapshot())
	}
	return infos
}

// Wallets returns the currently indexed wallet addresses.
func (ix *Indexer) Wallets() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	wallets := make([]string, 0, len(ix.subs))
	for w := range ix.subs {
		wallets = append(wallets, w)
	}
	return wallets
}
