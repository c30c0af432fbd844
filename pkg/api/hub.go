package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/wire"
)

// Hub fans accepted trades out to websocket subscribers. A slow client's
// full buffer drops frames for that client only; the ingest path is never
// held up by a reader.
type Hub struct {
	logger   log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  uint64
	closed  bool
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an empty hub.
func NewHub(logger log.Logger) *Hub {
	return &Hub{
		logger: logger.New("module", "ws-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast queues a trade for every connected client. Intended as the
// ingestion service's OnTrade hook; it never blocks.
func (h *Hub) Broadcast(t wire.TradeMsg) {
	frame, err := wire.Encode(t)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow reader: this client misses the frame.
		}
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.nextID++
	c.id = h.nextID
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "id", c.id, "clients", n)
	go h.writeLoop(c)
	h.readLoop(c)
}

// writeLoop drains the client's queue onto the wire.
func (h *Hub) writeLoop(c *client) {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	c.conn.Close()
}

// readLoop consumes control frames until the client goes away. The feed is
// one-way; inbound data frames are discarded.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Info("client disconnected", "id", c.id)
	}
}

// CloseAll disconnects every client; used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}
