package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/pkg/logger"
)

const (
	clientBuffer = 8
	writeWait    = 2 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub streams ticks to websocket clients. A slow client drops ticks
// rather than delaying the others.
type Hub struct {
	upgrader websocket.Upgrader
	bus      evbus.Bus

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub. checkOrigin may be nil to accept every origin.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Attach subscribes to the clock tick topic
func (h *Hub) Attach(bus evbus.Bus) error {
	if err := bus.Subscribe(clock.TopicSecond, h.Publish); err != nil {
		return err
	}
	h.bus = bus
	return nil
}

// Publish fans a tick out to every client
func (h *Hub) Publish(t clock.Tick) {
	data, err := json.Marshal(NewMessage(t))
	if err != nil {
		logger.Error("broadcast", "Failed to marshal tick", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams ticks until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("broadcast", "Failed to upgrade websocket connection", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	logger.SafeDebug("broadcast", "Websocket client connected", map[string]interface{}{
		"remote_addr": conn.RemoteAddr().String(),
	})

	go h.writeLoop(c)

	// Read until the peer closes; inbound messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.SafeDebug("broadcast", "Websocket closed unexpectedly", map[string]interface{}{
					"error": err.Error(),
				})
			}
			break
		}
	}

	h.remove(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
}

// Close disconnects every client and waits for their writers
func (h *Hub) Close() {
	if h.bus != nil {
		_ = h.bus.Unsubscribe(clock.TopicSecond, h.Publish)
		h.bus = nil
	}

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}
