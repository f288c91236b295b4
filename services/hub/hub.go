// Package hub fans JSON envelopes out to every connected WebSocket client.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"crypto_signals_backend/metrics"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	WriteTimeout   = 10 * time.Second
	PongTimeout    = 60 * time.Second
	PingInterval   = 30 * time.Second
	SendBufferSize = 256
	maxMessageSize = 4096
)

// Envelope types
const (
	TypeSignal        = "signal"
	TypeSignalDeleted = "signal_deleted"
	TypeNotification  = "notification"
	TypePong          = "pong"
)

var ErrClosed = errors.New("hub is shut down")

// Envelope is the JSON message pushed to clients
type Envelope struct {
	Type         string               `json:"type"`
	Signal       *models.Signal       `json:"signal,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// Publisher sends an envelope to every subscriber, local or remote
type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// Stats is a point-in-time view of the hub
type Stats struct {
	Clients        int    `json:"clients"`
	MaxClients     int    `json:"max_clients"`
	Broadcasts     uint64 `json:"broadcasts"`
	DroppedClients uint64 `json:"dropped_clients"`
}

// Client is one WebSocket connection
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub owns the client set. Only the run goroutine mutates it.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan directMessage
	shutdown   chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	maxClients int
	upgrader   websocket.Upgrader

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a hub and starts its loop. maxClients <= 0 means unbounded.
func New(maxClients int) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		direct:     make(chan directMessage, 64),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		maxClients: maxClients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go h.run()
	return h
}

// Shutdown disconnects every client and stops the loop
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
		<-h.done
		log.Info().Msg("WebSocket hub stopped")
	})
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.WSClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.maxClients > 0 && len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"),
					time.Now().Add(WriteTimeout))
				client.conn.Close()
				log.Warn().Int("max_clients", h.maxClients).Msg("WebSocket client rejected: max clients reached")
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(count))
			log.Debug().Str("client_id", client.id).Int("clients", count).Msg("WebSocket client connected")

			go client.writePump()
			go client.readPump()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(count))
			log.Debug().Str("client_id", client.id).Int("clients", count).Msg("WebSocket client disconnected")

		case msg := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[msg.client]; ok {
				select {
				case msg.client.send <- msg.data:
				default:
					h.dropLocked(msg.client)
				}
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.broadcasts.Add(1)
			metrics.WSBroadcasts.Inc()

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, drop it
					h.dropLocked(client)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(count))
		}
	}
}

// dropLocked removes a slow client. h.mu must be held.
func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.dropped.Add(1)
	metrics.WSDroppedClients.Inc()
	log.Warn().Str("client_id", client.id).Msg("WebSocket client dropped: send buffer full")
}

// Broadcast serializes v once and queues it for every client
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}
	return h.BroadcastRaw(data)
}

// BroadcastRaw queues already serialized bytes for every client
func (h *Hub) BroadcastRaw(data []byte) error {
	if h.closed() {
		return ErrClosed
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.shutdown:
		return ErrClosed
	}
}

// Publish implements Publisher for a single instance
func (h *Hub) Publish(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}
	if h.closed() {
		return ErrClosed
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.shutdown:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.shutdown:
		return true
	default:
		return false
	}
}

// Stats returns client and broadcast counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	clients := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		Clients:        clients,
		MaxClients:     h.maxClients,
		Broadcasts:     h.broadcasts.Load(),
		DroppedClients: h.dropped.Load(),
	}
}

// HandleWebSocket upgrades the request and registers the connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, SendBufferSize),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"),
			time.Now().Add(WriteTimeout))
		conn.Close()
	}
}

// ServeWS is the gin handler for GET /ws
func (h *Hub) ServeWS(c *gin.Context) {
	h.HandleWebSocket(c.Writer, c.Request)
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.shutdown:
	}
}

// writePump writes queued messages and keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.leave(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				closeMsg := []byte{}
				if c.hub.closed() {
					closeMsg = websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
				}
				c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundMessage struct {
	Action string `json:"action"`
}

var pongMessage = []byte(`{"type":"pong"}`)

// readPump consumes control frames and keepalive requests
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Action == "ping" {
			c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
			select {
			case c.hub.direct <- directMessage{client: c, data: pongMessage}:
			case <-c.hub.shutdown:
				return
			}
		}
	}
}
