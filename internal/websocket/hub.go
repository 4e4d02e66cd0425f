// Package websocket fans probe batches and fired alerts out to connected
// dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/fuomag9/servicewatch/internal/auth"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// ErrBufferFull is returned when the hub cannot queue another broadcast.
var ErrBufferFull = errors.New("websocket: broadcast buffer full")

// Message is the envelope of every frame sent to or received from a client.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Client struct {
	ID     string
	UserID int64
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
}

// Hub maintains connected clients. Run must be running for clients to
// register and for broadcasts to be delivered.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	tokens     *auth.Tokens
	origins    []string
	log        *slog.Logger
}

// NewHub creates a hub. allowedOrigins are full origins such as
// https://dash.example.com; only their host part is matched.
func NewHub(tokens *auth.Tokens, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		tokens:     tokens,
		origins:    originPatterns(allowedOrigins),
		log:        logger.With("module", "websocket"),
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Info("client connected", "client_id", c.ID, "user_id", c.UserID)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client disconnected", "client_id", c.ID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it rather than stall everyone else.
					delete(h.clients, c)
					close(c.send)
					h.log.Warn("dropping slow client", "client_id", c.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every client under msgType. It never blocks.
func (h *Hub) Broadcast(msgType string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Message{Type: msgType, Payload: payloadJSON})
	if err != nil {
		return err
	}

	select {
	case <-h.done:
		return errors.New("websocket: hub stopped")
	default:
	}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// HandleWebSocket authenticates and upgrades a dashboard connection. The
// token may come from the Authorization header or the token query parameter,
// since browsers cannot set headers on websocket requests.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.Parse(auth.FromRequest(r, true))
	if err != nil {
		h.log.Warn("connection rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}

	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !isNormalClose(err) && ctx.Err() == nil {
				c.hub.log.Warn("read failed", "client_id", c.ID, "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debug("malformed client message", "client_id", c.ID, "err", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for msg := range c.send {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.conn.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			if !isNormalClose(err) {
				c.hub.log.Warn("write failed", "client_id", c.ID, "err", err)
			}
			c.conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
	// send closed by the hub: shutdown or slow consumer.
	c.conn.Close(websocket.StatusGoingAway, "")
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		pong, _ := json.Marshal(Message{Type: "pong", Payload: json.RawMessage(`{}`)})
		c.hub.mu.RLock()
		_, live := c.hub.clients[c]
		if live {
			select {
			case c.send <- pong:
			default:
			}
		}
		c.hub.mu.RUnlock()
	default:
		c.hub.log.Debug("unknown message type", "client_id", c.ID, "type", msg.Type)
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// originPatterns converts configured origins into the host patterns
// websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
