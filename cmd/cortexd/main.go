// Command cortexd runs the wallet intelligence service: it indexes Solana
// DeFi activity for tracked wallets, derives positions and PnL, correlates
// them with prediction-market bets and serves the result over HTTP.
//
// Usage:
//
//	cortexd --config config.yaml
//
// Environment variables:
//
//	HISTORY_API_KEY              transaction history provider key
//	BINANCE_API_KEY / _SECRET    optional, public price endpoints work without
//	BYBIT_API_KEY / _SECRET      optional
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cortex/config"
	"github.com/vadiminshakov/cortex/internal/clients"
	"github.com/vadiminshakov/cortex/internal/services/analytics"
	"github.com/vadiminshakov/cortex/internal/services/conviction"
	"github.com/vadiminshakov/cortex/internal/services/history"
	"github.com/vadiminshakov/cortex/internal/services/indexer"
	"github.com/vadiminshakov/cortex/internal/services/parser"
	"github.com/vadiminshakov/cortex/internal/services/portfolio"
	"github.com/vadiminshakov/cortex/internal/services/prediction"
	"github.com/vadiminshakov/cortex/internal/services/pricer"
	"github.com/vadiminshakov/cortex/internal/services/stream"
	"github.com/vadiminshakov/cortex/internal/storage/summaries"
	"github.com/vadiminshakov/cortex/internal/storage/transactions"
	"github.com/vadiminshakov/cortex/internal/web"
)

const summaryRefreshInterval = time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	txStore, err := transactions.NewWALStore(filepath.Join(cfg.WALDir, "transactions"))
	if err != nil {
		logger.Fatal("open transaction store", zap.Error(err))
	}
	defer txStore.Close()

	summaryStore, err := summaries.NewWALStore(filepath.Join(cfg.WALDir, "summaries"))
	if err != nil {
		logger.Fatal("open summary store", zap.Error(err))
	}
	defer summaryStore.Close()

	priceChain := buildPricer(logger, cfg.Pricing)

	historyClient := history.NewClient(logger, cfg.History.BaseURL, cfg.History.APIKey,
		history.WithRateLimit(cfg.History.RateLimitRPS, int(cfg.History.RateLimitRPS)))

	var streamSource indexer.StreamSource
	if cfg.Stream.URL != "" {
		streamSource = stream.NewClient(logger, cfg.Stream.URL,
			stream.WithReconnectAttempts(cfg.Stream.ReconnectAttempts))
	}

	ix := indexer.New(logger, parser.NewRegistry(logger), txStore, historyClient, streamSource,
		indexer.WithLookback(cfg.History.Lookback),
		indexer.WithLiveWindow(cfg.Indexer.LiveWindow),
		indexer.WithMaxLiveEvents(cfg.Indexer.MaxLiveEvents),
		indexer.WithStopGrace(cfg.Indexer.StopGrace))

	portfolioEngine := portfolio.New(logger, txStore, priceChain)

	predictionSource := prediction.NewPolymarketSource(logger, cfg.Prediction.PolymarketURL)
	convictionEngine := conviction.New(logger, portfolioEngine, predictionSource,
		conviction.WithInformedFloors(cfg.Conviction.ScoreFloor, cfg.Conviction.ConfidenceFloor))

	analyticsService := analytics.New(logger, txStore, analytics.WithCacheTTL(cfg.CacheTTL))

	server := web.NewServer(cfg.ListenAddr, logger, portfolioEngine, convictionEngine, ix, analyticsService, cfg.CacheTTL,
		web.WithSummaryFallback(summaryStore))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		refreshSummaries(gctx, logger, ix, portfolioEngine, summaryStore)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}

	ix.StopAll()
	logger.Info("shutdown complete")
}

// refreshSummaries periodically recomputes and persists summaries for every
// indexed wallet. The persisted copy backs the summary endpoint's fallback
// when a fresh recompute fails.
func refreshSummaries(ctx context.Context, logger *zap.Logger, ix *indexer.Indexer, engine *portfolio.Engine, store *summaries.WALStore) {
	ticker := time.NewTicker(summaryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, wallet := range ix.Wallets() {
			summary, err := engine.Summary(ctx, wallet)
			if err != nil {
				logger.Warn("summary refresh failed", zap.String("wallet", wallet), zap.Error(err))
				continue
			}
			if err := store.Save(summary); err != nil {
				logger.Warn("summary persist failed", zap.String("wallet", wallet), zap.Error(err))
			}
		}
	}
}

func buildPricer(logger *zap.Logger, cfg config.PricingConfig) *pricer.Chain {
	var backends []pricer.Pricer
	for _, platform := range cfg.Platforms {
		switch platform {
		case "binance":
			client := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
			backends = append(backends, pricer.NewBinancePricer(client))
		case "bybit":
			client := clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
			backends = append(backends, pricer.NewBybitPricer(client))
		case "static":
			backends = append(backends, pricer.NewStaticPricer(nil))
		}
	}
	return pricer.NewChain(logger, backends...)
}
