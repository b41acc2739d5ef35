// Package prediction fetches a wallet's prediction-market positions. The
// conviction engine only depends on the Source interface, so tests and other
// platforms plug in without touching it.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/domain"
)

const (
	defaultBaseURL = "https://data-api.polymarket.com"
	requestTimeout = 15 * time.Second
)

// Source serves a wallet's open prediction-market positions.
type Source interface {
	Positions(ctx context.Context, wallet string) ([]domain.PredictionPosition, error)
}

// PolymarketSource reads positions from the Polymarket data API.
type PolymarketSource struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
}

// NewPolymarketSource builds a source against the given base URL; empty means
// the public data API.
func NewPolymarketSource(logger *zap.Logger, baseURL string) *PolymarketSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &PolymarketSource{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		baseURL:    baseURL,
	}
}

// apiPosition is the data API's position shape.
type apiPosition struct {
	Asset    string  `json:"asset"`
	Slug     string  `json:"slug"`
	Title    string  `json:"title"`
	Outcome  string  `json:"outcome"`
	Size     float64 `json:"size"`
	AvgPrice float64 `json:"avgPrice"`
}

// Positions fetches the wallet's open positions.
func (s *PolymarketSource) Positions(ctx context.Context, wallet string) ([]domain.PredictionPosition, error) {
	url := fmt.Sprintf("%s/positions?user=%s", s.baseURL, wallet)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch polymarket positions")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("polymarket API status %d: %s", resp.StatusCode, string(body))
	}

	var raw []apiPosition
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode polymarket positions")
	}

	positions := make([]domain.PredictionPosition, 0, len(raw))
	for _, p := range raw {
		if p.Size <= 0 {
			continue
		}
		positions = append(positions, domain.PredictionPosition{
			Wallet:       wallet,
			MarketSlug:   p.Slug,
			MarketTitle:  p.Title,
			OutcomeToken: p.Asset,
			Side:         domain.ParseSide(p.Outcome),
			Size:         decimal.NewFromFloat(p.Size),
			EntryPrice:   decimal.NewFromFloat(p.AvgPrice),
			Platform:     "polymarket",
		})
	}

	s.logger.Debug("polymarket positions fetched",
		zap.String("wallet", wallet),
		zap.Int("count", len(positions)))
	return positions, nil
}
