// Package ws fans messages out to WebSocket clients using gorilla/websocket.
//
//	hub := ws.NewHub()
//	go hub.Run(ctx)
//
//	// in a handler:
//	hub.Upgrade(w, r)
//
//	// from anywhere:
//	hub.Broadcast([]byte("reload"))
package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client represents a single connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound messages and keeps the read deadline fresh
// until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws: unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a message for this client. It reports false when the buffer
// is full and the message was dropped.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

// Hub maintains the active connections and broadcasts to them.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int64

	// OnConnect runs for every new client before it joins the hub.
	OnConnect func(c *Client)
	// OnCountChange runs on the hub goroutine whenever the count changes.
	OnCountChange func(n int)
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dev tooling connects from the page origin or a proxy in front.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns, closing every client, when ctx is
// done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	clients := make(map[*Client]struct{})
	changed := func() {
		h.count.Store(int64(len(clients)))
		if h.OnCountChange != nil {
			h.OnCountChange(len(clients))
		}
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				close(c.send)
			}
			clients = nil
			changed()
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			changed()

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				changed()
			}

		case msg := <-h.broadcast:
			for c := range clients {
				if !c.Send(msg) {
					delete(clients, c)
					close(c.send)
					changed()
				}
			}
		}
	}
}

// Broadcast queues msg for every connected client. It never blocks once
// the hub has stopped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// Upgrade upgrades the connection and registers the client with the hub.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*Client, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if h.OnConnect != nil {
		h.OnConnect(c)
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil, context.Canceled
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
