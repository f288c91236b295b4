package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto_signals_backend/models"
	"crypto_signals_backend/services/hub"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDelay(t *testing.T) {
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, Delay(time.Second, i+1), "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, Delay(time.Second, 0))
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	c := New(Config{URL: url})
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	err := c.Run(context.Background(), func(hub.Envelope) {})
	require.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, waits)
}

func TestRunResetsBackoffAfterConnecting(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(Config{URL: wsURL(srv), BaseDelay: 10 * time.Millisecond, MaxAttempts: 2})
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := c.Run(ctx, func(hub.Envelope) {})
	require.ErrorIs(t, err, context.Canceled)
	for _, d := range waits {
		assert.Equal(t, 10*time.Millisecond, d)
	}
}

func TestRunDeliversEnvelopes(t *testing.T) {
	h := hub.New(0)
	defer h.Shutdown()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []hub.Envelope
	)
	done := make(chan error, 1)
	go func() {
		done <- New(Config{URL: wsURL(srv)}).Run(ctx, func(env hub.Envelope) {
			mu.Lock()
			received = append(received, env)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return h.Stats().Clients == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Broadcast(hub.Envelope{Type: hub.TypeSignal, Signal: &models.Signal{Symbol: "ETHUSDT", Action: models.ActionSell}}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, hub.TypeSignal, received[0].Type)
	assert.Equal(t, "ETHUSDT", received[0].Signal.Symbol)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
