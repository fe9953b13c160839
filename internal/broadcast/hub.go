// Package broadcast fans tactical events out to WebSocket subscribers.
// Producers publish tagged events to named channels; each connection picks
// the channels it wants and receives everything published there plus
// anything sent to the catch-all channel.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Subscription channels.
const (
	ChannelThreats  = "threats"
	ChannelTracking = "tracking"
	ChannelSitrep   = "sitrep"
	ChannelTactical = "tactical"
	ChannelAll      = "all"
)

// Event types.
const (
	EventThreatUpdate   = "threat_update"
	EventTrackingUpdate = "tracking_update"
	EventSitrepUpdate   = "sitrep_update"
	EventTacticalUpdate = "tactical_update"
)

// Event is the envelope pushed to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink is the producer-facing side of the hub. Services publish through
// this interface so they stay testable without live sockets.
type Sink interface {
	Publish(channel string, event Event)
}

// NoopSink discards events. Used when broadcasting is disabled.
type NoopSink struct{}

func (NoopSink) Publish(string, Event) {}

type message struct {
	channel string
	payload []byte
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
	mu       sync.Mutex
}

func (c *client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ChannelAll] || c.channels[channel]
}

func (c *client) setSubscription(channel string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.channels[channel] = true
	} else {
		delete(c.channels, channel)
	}
}

// Hub tracks live connections and routes published events to them. Run
// must be started before serving connections.
type Hub struct {
	logger *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan message
	done       chan struct{}

	upgrader websocket.Upgrader
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, 64),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser clients connect from a separate origin in the field.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled. After Run returns the
// hub accepts no new connections and Publish drops events.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]bool)
	defer func() {
		close(h.done)
		for c := range clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = true
		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range clients {
				if !c.subscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish sends an event to every subscriber of channel. Never blocks the
// caller beyond the hub's internal queue.
func (h *Hub) Publish(channel string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("encode broadcast event", "error", err)
		}
		return
	}
	select {
	case h.broadcast <- message{channel: channel, payload: payload}:
	case <-h.done:
	}
}

// clientCommand is what subscribers send upstream.
type clientCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// ServeWS upgrades the request and attaches it to the hub. The connection
// starts subscribed to the channel named in the path query ("channel"
// parameter, default all).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = ChannelAll
	}
	c := &client{
		conn:     conn,
		send:     make(chan []byte, 32),
		channels: map[string]bool{channel: true},
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			if cmd.Channel != "" {
				c.setSubscription(cmd.Channel, true)
			}
		case "unsubscribe":
			c.setSubscription(cmd.Channel, false)
		case "ping":
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
