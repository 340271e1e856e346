package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/revalidate"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Event is the message pushed to websocket subscribers.
type Event struct {
	Type    string             `json:"type"`
	Applied revalidate.Applied `json:"applied"`
}

// Client is one event subscriber.
type Client interface {
	// Send queues message without blocking and reports whether it was queued.
	Send(message []byte) bool
	Close()
}

// Hub fans applied revalidations out to websocket subscribers.
//
// A subscriber that cannot keep up is dropped rather than slowing the
// revalidation path.
type Hub struct {
	logger observe.Logger

	mu      sync.RWMutex
	clients map[Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger observe.Logger) *Hub {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Hub{logger: logger, clients: make(map[Client]struct{})}
}

// Register adds a client.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes a client. It reports whether the client was present.
func (h *Hub) Unregister(c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	return true
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues message on every client and drops the ones that are full.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	var slow []Client
	for c := range h.clients {
		if !c.Send(message) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		if h.Unregister(c) {
			c.Close()
		}
	}
}

// Publish is a revalidate.Listener that broadcasts a.
func (h *Hub) Publish(ctx context.Context, a revalidate.Applied) {
	msg, err := json.Marshal(Event{Type: "revalidated", Applied: a})
	if err != nil {
		h.logger.Error(ctx, "encode event", observe.F("error", err.Error()))
		return
	}
	h.Broadcast(msg)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.Close()
	}
}

// wsClient writes queued messages to a websocket from its own goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *wsClient) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscribers authenticate with a session token; origin is not a boundary.
	CheckOrigin: func(*http.Request) bool { return true },
}

// events upgrades the request and streams events until the peer goes away.
func (h *Hub) events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "websocket upgrade failed", observe.F("error", err.Error()))
		return
	}

	client := newWSClient(conn)
	h.Register(client)
	go client.writeLoop()
	defer func() {
		h.Unregister(client)
		client.Close()
	}()

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
