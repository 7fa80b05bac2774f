package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/lexmask/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is sent after a pass masked something
	EventTypeRedaction EventType = "redaction"
	// EventTypeRequestLog is sent for every API or proxied request
	EventTypeRequestLog EventType = "request_log"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RedactionEvent reports what a redaction pass replaced. Only counts and
// categories are included, never original values.
type RedactionEvent struct {
	RequestID     string            `json:"request_id"`
	Source        string            `json:"source"` // api, proxy
	Path          string            `json:"path"`
	Findings      []privacy.Finding `json:"findings"`
	TotalFindings int               `json:"total_findings"`
	ProcessingMS  float64           `json:"processing_ms"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID    string        `json:"request_id"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	ClientIP     string        `json:"client_ip"`
	Duration     time.Duration `json:"duration"`
	ResponseSize int64         `json:"response_size"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string

	// subscribed is nil until the client sends a subscribe message; owned
	// by the hub goroutine.
	subscribed map[EventType]bool
}
