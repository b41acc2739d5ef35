// Package stream maintains a websocket subscription to the live decoded
// transaction feed. Disconnects trigger a bounded reconnect loop; exhausting
// it surfaces an error so the caller can mark the subscription degraded.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cortex/internal/services/parser"
	"github.com/vadiminshakov/cortex/pkg/retrier"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second

	defaultReconnectAttempts = 10
)

// subscribeRequest is sent once per connection.
type subscribeRequest struct {
	Action string `json:"action"`
	Wallet string `json:"wallet,omitempty"`
}

// envelope wraps every message on the feed. Data holds either a single event
// or an array of events.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client subscribes to the live feed for one wallet at a time.
type Client struct {
	url    string
	logger *zap.Logger
	dialer *websocket.Dialer

	reconnectAttempts int
}

// Option configures the Client.
type Option func(*Client)

// WithReconnectAttempts caps dial retries per disconnect.
func WithReconnectAttempts(n int) Option {
	return func(c *Client) {
		c.reconnectAttempts = n
	}
}

// NewClient builds a stream client for the given websocket URL.
func NewClient(logger *zap.Logger, url string, opts ...Option) *Client {
	c := &Client{
		url:               url,
		logger:            logger,
		dialer:            &websocket.Dialer{HandshakeTimeout: dialTimeout},
		reconnectAttempts: defaultReconnectAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe streams events involving the wallet into out until ctx is
// canceled or reconnection attempts are exhausted. Returns nil on ctx cancel.
func (c *Client) Subscribe(ctx context.Context, wallet string, out chan<- *parser.RawEvent) error {
	r := retrier.New(
		retrier.WithMaxRetries(c.reconnectAttempts),
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxInterval(30*time.Second),
		retrier.WithRetryIf(func(err error) bool {
			// redialing a canceled subscription is pointless
			return !errors.Is(err, context.Canceled)
		}),
	)

	for {
		conn, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (*websocket.Conn, error) {
			return c.connect(ctx, wallet)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reconnect attempts exhausted")
		}

		err = c.readLoop(ctx, conn, wallet, out)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("stream disconnected, reconnecting",
			zap.String("wallet", wallet),
			zap.Error(err))
	}
}

func (c *Client) connect(ctx context.Context, wallet string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial stream")
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Wallet: wallet}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send subscribe")
	}

	c.logger.Info("stream connected", zap.String("wallet", wallet))
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, wallet string, out chan<- *parser.RawEvent) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(writeTimeout))
	})

	// close the connection when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		events, err := decodeEnvelope(payload)
		if err != nil {
			c.logger.Debug("undecodable stream message", zap.Error(err))
			continue
		}

		for _, ev := range events {
			if !ev.InvolvesWallet(wallet) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decodeEnvelope unpacks one feed message into events. Data may be a single
// object or an array.
func decodeEnvelope(payload []byte) ([]*parser.RawEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if len(env.Data) == 0 {
		return nil, nil
	}

	var batch []*parser.RawEvent
	if err := json.Unmarshal(env.Data, &batch); err == nil {
		return batch, nil
	}

	var single parser.RawEvent
	if err := json.Unmarshal(env.Data, &single); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	return []*parser.RawEvent{&single}, nil
}
