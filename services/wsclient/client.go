// Package wsclient subscribes to the signal stream and reconnects with
// exponential backoff when the connection drops.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crypto_signals_backend/services/hub"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
	readTimeout        = 90 * time.Second
)

// ErrGaveUp is returned by Run once every reconnect attempt has failed
var ErrGaveUp = errors.New("wsclient: gave up reconnecting")

// Config configures the subscriber
type Config struct {
	URL              string
	Header           http.Header
	BaseDelay        time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
}

// Handler receives every envelope read from the stream
type Handler func(env hub.Envelope)

// Client is a reconnecting WebSocket subscriber
type Client struct {
	cfg    Config
	dialer websocket.Dialer
	wait   func(ctx context.Context, d time.Duration) error
}

// New creates a subscriber
func New(cfg Config) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		wait:   sleepContext,
	}
}

// Delay returns the wait before reconnect attempt n (1-based):
// base, 2*base, 4*base, ...
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Run connects and delivers envelopes to handler until ctx is cancelled or
// every reconnect attempt has failed. A successful connection resets the
// attempt counter.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err == nil {
			attempt = 0
			log.Info().Str("url", c.cfg.URL).Msg("Connected to signal stream")
			err = c.consume(ctx, conn, handler)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			log.Error().Err(err).Int("attempts", c.cfg.MaxAttempts).Msg("Giving up on signal stream")
			return ErrGaveUp
		}

		delay := Delay(c.cfg.BaseDelay, attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Signal stream disconnected, reconnecting")
		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// consume reads from conn until it fails or ctx ends
func (c *Client) consume(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(hub.WriteTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var env hub.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Msg("Skipping malformed envelope")
			continue
		}
		handler(env)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
