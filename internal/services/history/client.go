// Package history backfills a wallet's past transactions from the enhanced
// transaction REST API. Requests are rate limited; pagination walks backwards
// in time until the lookback horizon or the event cap is reached.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/cortex/internal/services/parser"
)

const (
	defaultPageSize  = 100
	defaultMaxEvents = 5000
	requestTimeout   = 15 * time.Second
)

// Client fetches decoded transaction history over REST.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	baseURL   string
	apiKey    string
	pageSize  int
	maxEvents int
}

// Option configures the Client.
type Option func(*Client)

// WithPageSize overrides the page size used for pagination.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithMaxEvents caps the total number of events fetched per backfill.
func WithMaxEvents(n int) Option {
	return func(c *Client) {
		c.maxEvents = n
	}
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient builds a history client against the given API base URL.
func NewClient(logger *zap.Logger, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   defaultPageSize,
		maxEvents:  defaultMaxEvents,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiTransaction is the provider's enhanced transaction shape.
type apiTransaction struct {
	Signature      string             `json:"signature"`
	Slot           uint64             `json:"slot"`
	Timestamp      int64              `json:"timestamp"`
	Type           string             `json:"type"`
	Source         string             `json:"source"`
	FeePayer       string             `json:"feePayer"`
	Instructions   []apiInstruction   `json:"instructions"`
	TokenTransfers []apiTokenTransfer `json:"tokenTransfers"`
}

type apiInstruction struct {
	ProgramID string `json:"programId"`
}

type apiTokenTransfer struct {
	Mint            string       `json:"mint"`
	FromUserAccount string       `json:"fromUserAccount"`
	ToUserAccount   string       `json:"toUserAccount"`
	TokenAmount     float64      `json:"tokenAmount"`
	RawTokenAmount  apiRawAmount `json:"rawTokenAmount"`
}

type apiRawAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int32  `json:"decimals"`
}

// FetchTransactions walks the wallet's history newest-first down to the
// lookback horizon, converting every page to raw events.
func (c *Client) FetchTransactions(ctx context.Context, wallet string, lookback time.Duration) ([]*parser.RawEvent, error) {
	cutoff := time.Now().Add(-lookback).Unix()
	before := ""

	var events []*parser.RawEvent
	for len(events) < c.maxEvents {
		page, err := c.fetchPage(ctx, wallet, before)
		if err != nil {
			return nil, errors.Wrap(err, "fetch history page")
		}
		if len(page) == 0 {
			break
		}

		done := false
		for _, tx := range page {
			if tx.Timestamp < cutoff {
				done = true
				break
			}
			events = append(events, convert(tx, wallet))
		}
		if done || len(page) < c.pageSize {
			break
		}
		before = page[len(page)-1].Signature
	}

	c.logger.Info("backfill fetched",
		zap.String("wallet", wallet),
		zap.Int("events", len(events)))
	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, wallet, before string) ([]apiTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s&limit=%d", c.baseURL, wallet, c.apiKey, c.pageSize)
	if before != "" {
		url += "&before=" + before
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("history API status %d: %s", resp.StatusCode, string(body))
	}

	var page []apiTransaction
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "decode history page")
	}
	return page, nil
}

// convert maps the provider shape to a raw event. Transfers out of the wallet
// become the input leg, transfers in become the output leg.
func convert(tx apiTransaction, wallet string) *parser.RawEvent {
	ev := &parser.RawEvent{
		TxSignature: tx.Signature,
		Slot:        tx.Slot,
		BlockTime:   tx.Timestamp,
		DecoderType: tx.Source,
		EventType:   tx.Type,
		FeePayer:    tx.FeePayer,
	}
	if len(tx.Instructions) > 0 {
		ev.ProgramID = tx.Instructions[0].ProgramID
	}

	for _, transfer := range tx.TokenTransfers {
		leg := &parser.TokenAmount{
			Mint:      transfer.Mint,
			RawAmount: transfer.RawTokenAmount.TokenAmount,
			Decimals:  transfer.RawTokenAmount.Decimals,
			UIAmount:  transfer.TokenAmount,
		}
		switch wallet {
		case transfer.FromUserAccount:
			leg.Owner = wallet
			if ev.TokenIn == nil {
				ev.TokenIn = leg
			}
		case transfer.ToUserAccount:
			leg.Owner = wallet
			if ev.TokenOut == nil {
				ev.TokenOut = leg
			}
		}
	}
	return ev
}
