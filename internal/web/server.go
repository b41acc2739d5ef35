// Package web exposes the HTTP API over the indexing, portfolio, conviction
// and analytics services. Handlers validate the wallet address before doing
// any work and serve hot wallet reads through the query cache.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/cache"
	"github.com/vadiminshakov/cortex/internal/domain"
	"github.com/vadiminshakov/cortex/internal/services/analytics"
	"github.com/vadiminshakov/cortex/internal/services/indexer"
)

const defaultMinConviction = 0.8

type portfolioEngine interface {
	Summary(ctx context.Context, wallet string) (domain.WalletSummary, error)
	PnL(ctx context.Context, wallet string) (domain.PnLBreakdown, error)
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

type convictionEngine interface {
	Compute(ctx context.Context, wallet string) (domain.ConvictionScore, error)
	FindInformedTraders(ctx context.Context, wallets []string, minConviction float64) ([]domain.ConvictionScore, error)
}

type indexerService interface {
	Start(ctx context.Context, wallet string) error
	Stop(wallet string) error
	List() []indexer.SubscriptionInfo
	Wallets() []string
}

// summarySource serves the last persisted summary for a wallet.
type summarySource interface {
	Get(wallet string) (domain.WalletSummary, bool)
}

type analyticsService interface {
	TokenTrend(ctx context.Context, wallet, token string) (analytics.TokenTrend, error)
	VolumeProfile(ctx context.Context, wallet string) (analytics.VolumeProfile, error)
	Anomalies(ctx context.Context, wallet, token string, threshold float64) ([]analytics.Anomaly, error)
	SearchWallets(query string) []string
}

// Server is the HTTP API front.
type Server struct {
	addr      string
	logger    *zap.Logger
	portfolio portfolioEngine
	convict   convictionEngine
	indexer   indexerService
	analytics analyticsService
	persisted summarySource

	summaries   *cache.Cache[domain.WalletSummary]
	pnls        *cache.Cache[domain.PnLBreakdown]
	positions   *cache.Cache[[]domain.Position]
	convictions *cache.Cache[domain.ConvictionScore]
}

// Option configures the Server.
type Option func(*Server)

// WithSummaryFallback serves the last persisted summary when the portfolio
// engine cannot compute a fresh one.
func WithSummaryFallback(src summarySource) Option {
	return func(s *Server) {
		s.persisted = src
	}
}

// NewServer creates the API server with fresh query caches.
func NewServer(addr string, logger *zap.Logger, p portfolioEngine, c convictionEngine, ix indexerService, a analyticsService, cacheTTL time.Duration, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		logger:      logger,
		portfolio:   p,
		convict:     c,
		indexer:     ix,
		analytics:   a,
		summaries:   cache.New[domain.WalletSummary](cache.DefaultSize, cacheTTL),
		pnls:        cache.New[domain.PnLBreakdown](cache.DefaultSize, cacheTTL),
		positions:   cache.New[[]domain.Position](cache.DefaultSize, cacheTTL),
		convictions: cache.New[domain.ConvictionScore](cache.DefaultSize, cacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/wallet/{wallet}/summary", s.walletHandler(s.handleSummary))
	mux.HandleFunc("GET /api/v1/wallet/{wallet}/pnl", s.walletHandler(s.handlePnL))
	mux.HandleFunc("GET /api/v1/wallet/{wallet}/positions", s.walletHandler(s.handlePositions))
	mux.HandleFunc("GET /api/v1/wallet/{wallet}/conviction", s.walletHandler(s.handleConviction))

	mux.HandleFunc("POST /api/v1/index", s.handleIndexStart)
	mux.HandleFunc("GET /api/v1/index", s.handleIndexList)
	mux.HandleFunc("DELETE /api/v1/index/{wallet}", s.walletHandler(s.handleIndexStop))

	mux.HandleFunc("GET /api/v1/traders/informed", s.handleInformedTraders)

	mux.HandleFunc("GET /api/v1/analytics/trend", s.handleTrend)
	mux.HandleFunc("GET /api/v1/analytics/volume", s.handleVolume)
	mux.HandleFunc("GET /api/v1/analytics/anomalies", s.handleAnomalies)
	mux.HandleFunc("GET /api/v1/wallets/search", s.handleSearch)

	return s.withRequestID(mux)
}

// withRequestID tags every response with an X-Request-ID header, honoring the
// caller's id when one is supplied.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// walletHandler validates the path wallet before the handler runs.
func (s *Server) walletHandler(next func(w http.ResponseWriter, r *http.Request, wallet string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")
		if err := domain.ValidateAddress(wallet); err != nil {
			writeError(w, http.StatusBadRequest, "invalid wallet address")
			return
		}
		next(w, r, wallet)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, wallet string) {
	summary, err := s.summaries.GetOrCompute(r.Context(), wallet, func(ctx context.Context) (domain.WalletSummary, error) {
		return s.portfolio.Summary(ctx, wallet)
	})
	if err != nil {
		// fall back to the last persisted summary rather than erroring out
		if s.persisted != nil {
			if stale, ok := s.persisted.Get(wallet); ok {
				s.logger.Warn("serving persisted summary",
					zap.String("wallet", wallet),
					zap.Error(err))
				writeJSON(w, http.StatusOK, stale)
				return
			}
		}
		s.fail(w, "summary", wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request, wallet string) {
	raw := r.URL.Query().Get("window")
	window, err := domain.ParseWindow(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown window")
		return
	}

	pnl, err := s.pnls.GetOrCompute(r.Context(), wallet, func(ctx context.Context) (domain.PnLBreakdown, error) {
		return s.portfolio.PnL(ctx, wallet)
	})
	if err != nil {
		s.fail(w, "pnl", wallet, err)
		return
	}

	// no window requested: the full breakdown
	if raw == "" {
		writeJSON(w, http.StatusOK, pnl)
		return
	}
	writeJSON(w, http.StatusOK, windowedPnL{
		Wallet:     wallet,
		Window:     window,
		Realized:   pnl.Realized(window),
		Unrealized: pnl.Unrealized,
	})
}

type windowedPnL struct {
	Wallet     string            `json:"wallet"`
	Window     domain.TimeWindow `json:"window"`
	Realized   decimal.Decimal   `json:"realized_pnl"`
	Unrealized decimal.Decimal   `json:"unrealized_pnl"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request, wallet string) {
	positions, err := s.positions.GetOrCompute(r.Context(), wallet, func(ctx context.Context) ([]domain.Position, error) {
		return s.portfolio.Positions(ctx, wallet)
	})
	if err != nil {
		s.fail(w, "positions", wallet, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleConviction(w http.ResponseWriter, r *http.Request, wallet string) {
	score, err := s.convictions.GetOrCompute(r.Context(), wallet, func(ctx context.Context) (domain.ConvictionScore, error) {
		return s.convict.Compute(ctx, wallet)
	})
	if err != nil {
		s.fail(w, "conviction", wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

type indexRequest struct {
	Wallet string `json:"wallet"`
}

func (s *Server) handleIndexStart(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateAddress(req.Wallet); err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	// the pipeline must outlive this request
	if err := s.indexer.Start(context.WithoutCancel(r.Context()), req.Wallet); err != nil {
		if errors.Is(err, indexer.ErrAlreadyIndexed) {
			writeError(w, http.StatusConflict, "wallet already indexed")
			return
		}
		s.fail(w, "index start", req.Wallet, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"wallet": req.Wallet, "status": "indexing"})
}

func (s *Server) handleIndexList(w http.ResponseWriter, _ *http.Request) {
	infos := s.indexer.List()
	if infos == nil {
		infos = []indexer.SubscriptionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleIndexStop(w http.ResponseWriter, _ *http.Request, wallet string) {
	if err := s.indexer.Stop(wallet); err != nil {
		if errors.Is(err, indexer.ErrNotIndexed) {
			writeError(w, http.StatusNotFound, "wallet not indexed")
			return
		}
		s.fail(w, "index stop", wallet, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInformedTraders(w http.ResponseWriter, r *http.Request) {
	minConviction := defaultMinConviction
	if raw := r.URL.Query().Get("min"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			writeError(w, http.StatusBadRequest, "min must be a number in [0,1]")
			return
		}
		minConviction = parsed
	}

	informed, err := s.convict.FindInformedTraders(r.Context(), s.indexer.Wallets(), minConviction)
	if err != nil {
		s.fail(w, "informed traders", "", err)
		return
	}
	if informed == nil {
		informed = []domain.ConvictionScore{}
	}
	writeJSON(w, http.StatusOK, informed)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	wallet, token := r.URL.Query().Get("wallet"), r.URL.Query().Get("token")
	if domain.ValidateAddress(wallet) != nil || token == "" {
		writeError(w, http.StatusBadRequest, "wallet and token are required")
		return
	}

	tr, err := s.analytics.TokenTrend(r.Context(), wallet, token)
	if err != nil {
		if errors.Is(err, analytics.ErrNotEnoughData) {
			writeError(w, http.StatusNotFound, "not enough data")
			return
		}
		s.fail(w, "trend", wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if domain.ValidateAddress(wallet) != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	profile, err := s.analytics.VolumeProfile(r.Context(), wallet)
	if err != nil {
		s.fail(w, "volume", wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	wallet, token := r.URL.Query().Get("wallet"), r.URL.Query().Get("token")
	if domain.ValidateAddress(wallet) != nil || token == "" {
		writeError(w, http.StatusBadRequest, "wallet and token are required")
		return
	}
	threshold := 3.0
	if raw := r.URL.Query().Get("sigma"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "sigma must be a positive number")
			return
		}
		threshold = parsed
	}

	anomalies, err := s.analytics.Anomalies(r.Context(), wallet, token, threshold)
	if err != nil {
		if errors.Is(err, analytics.ErrNotEnoughData) {
			writeError(w, http.StatusNotFound, "not enough data")
			return
		}
		s.fail(w, "anomalies", wallet, err)
		return
	}
	if anomalies == nil {
		anomalies = []analytics.Anomaly{}
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	matched := s.analytics.SearchWallets(r.URL.Query().Get("q"))
	if matched == nil {
		matched = []string{}
	}
	writeJSON(w, http.StatusOK, matched)
}

func (s *Server) fail(w http.ResponseWriter, op, wallet string, err error) {
	s.logger.Error("request failed",
		zap.String("op", op),
		zap.String("wallet", wallet),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
