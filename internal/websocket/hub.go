// Package websocket streams redaction and request events to dashboard
// clients.
package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/security"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer
	maxMessageSize = 512
)

type subscription struct {
	client *Client
	events []EventType
}

// Hub maintains the set of active clients and broadcasts events to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	pings      chan *Client
	countQuery chan chan int
	done       chan struct{}

	config   config.WebSocketConfig
	trusted  security.TrustedProxies
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu    sync.Mutex
	stats HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int64     `json:"active_connections"`
	TotalMessages     int64     `json:"total_messages"`
	TotalBroadcasts   int64     `json:"total_broadcasts"`
	DroppedEvents     int64     `json:"dropped_events"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, log *logger.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		pings:      make(chan *Client),
		countQuery: make(chan chan int),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     log.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetTrustedProxies sets the peers whose forwarding headers name the
// client address. Call before serving.
func (h *Hub) SetTrustedProxies(t security.TrustedProxies) {
	h.trusted = t
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Run handles registration and broadcasting until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.mu.Lock()
			h.stats.TotalConnections++
			h.stats.ActiveConnections = int64(len(h.clients))
			h.mu.Unlock()

			h.logger.Info("Client connected",
				zap.String("client_id", client.ID),
				zap.String("client_ip", client.IP),
				zap.Int("active_connections", len(h.clients)),
			)
			h.fanOut(connectionEvent("connected", client), client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("Client disconnected",
					zap.String("client_id", client.ID),
					zap.Int("active_connections", len(h.clients)),
				)
				h.fanOut(connectionEvent("disconnected", client), nil)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; ok {
				sub.client.subscribed = make(map[EventType]bool, len(sub.events))
				for _, t := range sub.events {
					sub.client.subscribed[t] = true
				}
			}

		case client := <-h.pings:
			if _, ok := h.clients[client]; ok {
				select {
				case client.Send <- Event{Type: EventTypePong, Timestamp: time.Now()}:
				default:
				}
			}

		case reply := <-h.countQuery:
			reply <- len(h.clients)

		case event := <-h.broadcast:
			h.fanOut(event, nil)
		}
	}
}

func connectionEvent(action string, c *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data:      ConnectionEvent{Action: action, ClientID: c.ID, ClientIP: c.IP},
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)

	h.mu.Lock()
	h.stats.ActiveConnections = int64(len(h.clients))
	h.mu.Unlock()
}

// fanOut delivers event to every subscribed client except skip. Clients
// whose send buffer is full are disconnected.
func (h *Hub) fanOut(event Event, skip *Client) {
	if event.Type == EventTypeConnection && !h.config.Events.BroadcastConnections {
		return
	}

	sent := int64(0)
	for client := range h.clients {
		if client == skip || !wants(client, event.Type) {
			continue
		}
		select {
		case client.Send <- event:
			sent++
		default:
			h.logger.Warn("Client send channel full, closing connection", zap.String("client_id", client.ID))
			h.drop(client)
		}
	}

	h.mu.Lock()
	h.stats.TotalBroadcasts++
	h.stats.TotalMessages += sent
	h.stats.LastBroadcastTime = time.Now()
	h.mu.Unlock()
}

func wants(client *Client, t EventType) bool {
	if client.subscribed == nil {
		return true
	}
	return client.subscribed[t]
}

// BroadcastEvent queues an event if its type is enabled in configuration.
// It never blocks; events are dropped when the queue is full.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.mu.Lock()
		h.stats.DroppedEvents++
		h.mu.Unlock()
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if !h.config.Enabled {
		return false
	}

	switch eventType {
	case EventTypeRedaction:
		return h.config.Events.BroadcastRedactions
	case EventTypeRequestLog:
		return h.config.Events.BroadcastRequests
	case EventTypeConnection:
		return h.config.Events.BroadcastConnections
	default:
		return false
	}
}

// HandleWebSocket upgrades an authenticated request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !security.CheckBasicAuth(r, h.config.Username, h.config.Password) {
		w.Header().Set("WWW-Authenticate", `Basic realm="lexmask"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		IP:          h.trusted.ClientIP(r),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		h.send(h.unregister, client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			select {
			case h.subscribe <- subscription{client: client, events: msg.Events}:
			case <-h.done:
				return
			}
		case "ping":
			h.send(h.pings, client)
		}
	}
}

// send hands client to the hub unless it has stopped.
func (h *Hub) send(ch chan *Client, client *Client) {
	select {
	case ch <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients, or 0 once the hub
// has stopped.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.countQuery <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
