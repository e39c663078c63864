// Package trade — WebSocket hub broadcasting committed trades to leaderboard
// clients.
package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stockleague/ledger-engine/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSMessage is a JSON message sent to WebSocket clients after a trade
// commits.
type WSMessage struct {
	Type        string `json:"type"`
	PlayerID    string `json:"player_id"`
	Symbol      string `json:"symbol,omitempty"`
	Trade       string `json:"trade,omitempty"` // BUY or SELL
	Quantity    string `json:"quantity,omitempty"`
	Price       string `json:"price,omitempty"`
	CashBalance string `json:"cash_balance,omitempty"`
}

// wsClient pairs a connection with its outbound queue. writePump is the only
// goroutine that writes to the connection, including pings; gorilla/websocket
// allows at most one concurrent writer per conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub manages WebSocket connections and broadcasts messages to all
// connected clients when trades commit. The Run loop is the sole owner of the
// clients map; registration, removal, and broadcasts all funnel through its
// channels, so the map needs no lock.
type WSHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", len(h.clients))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop it rather than block the hub.
					h.drop(c)
				}
			}
		}
	}
}

// drop removes a client from the map and closes its queue, which stops its
// writePump. Only called from the Run loop.
func (h *WSHub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WebSocketClients.Dec()
	}
}

// Broadcast queues a message for all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking trade execution.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- c
	go c.writePump()
	go c.readPump(h)
}

// readPump keeps the connection alive and detects disconnects.
func (c *wsClient) readPump(h *WSHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the outbound queue and sends keepalive pings through
// proxies. Exits when the hub closes the queue or a write fails; closing the
// conn here unblocks readPump, which then unregisters the client.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
