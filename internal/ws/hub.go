package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // bytes; clients only send pongs
	sendBufferSize = 256              // messages in each client send channel
)

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // buffered outbound message queue
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// Hub maintains the set of active clients and routes broadcast messages.
// Run() must be called in a dedicated goroutine before ServeWs is used.
// All connections are anonymous; the feed is read-only market data.
type Hub struct {
	// Registered clients and their concurrency guard.
	mu      sync.RWMutex
	clients map[*Client]bool

	// channels consumed by Run()
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// upgrader is safe for concurrent use after construction.
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run().
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Run — hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration, and broadcast events
// sequentially.  Call it once as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer full — drop the message for this client.
					// The writePump will detect a stalled connection separately.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs — HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades an HTTP request to a WebSocket connection and starts the
// read/write pumps.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWs: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection.  It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket connection.  Only pong messages
// are handled (they reset the read deadline).  All other inbound messages are
// discarded — this is a server-push-only protocol.  When the connection drops
// the client is unregistered.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws.readPump: unexpected close: %v", err)
			}
			return
		}
		// All inbound messages are silently dropped; server is push-only.
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Broadcast helpers — implement service.Notifier
// ──────────────────────────────────────────────────────────────────────────────

// TickerUpdate broadcasts the fresh price state after a repricing tick.
func (h *Hub) TickerUpdate(inst *domain.Instrument) {
	h.broadcastJSON(TickerMessage{
		Type:          MsgTypeTicker,
		InstrumentID:  inst.AccountID,
		Price:         inst.CurrentPrice,
		PreviousClose: inst.PreviousClose,
		ChangePct:     inst.ChangePct(),
		DailyHigh:     inst.DailyHigh,
		DailyLow:      inst.DailyLow,
		VolumeToday:   inst.VolumeToday,
		Timestamp:     time.Now().UTC(),
	})
}

// NewsPublished broadcasts a freshly synthesized news item.
func (h *Hub) NewsPublished(news *domain.MarketNews) {
	h.broadcastJSON(NewsMessage{
		Type:         MsgTypeNews,
		InstrumentID: news.InstrumentID,
		Headline:     news.Headline,
		Description:  news.Description,
		Impact:       news.Impact,
		Timestamp:    time.Now().UTC(),
	})
}

// EventStarted broadcasts a crash/boom the moment its window opens.
func (h *Hub) EventStarted(event *domain.MarketEvent) {
	h.broadcastJSON(EventMessage{
		Type:        MsgTypeEvent,
		EventID:     event.ID,
		EventType:   event.Type,
		Magnitude:   event.Magnitude,
		Description: event.Description,
		TargetID:    event.TargetID,
		ActiveUntil: event.ActiveUntil,
		Timestamp:   time.Now().UTC(),
	})
}

// AchievementUnlocked broadcasts a fresh milestone unlock.
func (h *Hub) AchievementUnlocked(a *domain.Achievement) {
	h.broadcastJSON(AchievementMessage{
		Type:        MsgTypeAchievement,
		AccountID:   a.AccountID,
		Name:        a.Name,
		Description: a.Description,
		Timestamp:   time.Now().UTC(),
	})
}

// OrderFilled broadcasts a limit-order execution with its fill price.
func (h *Hub) OrderFilled(order *domain.LimitOrder, fillPrice decimal.Decimal) {
	h.broadcastJSON(OrderFilledMessage{
		Type:         MsgTypeOrderFilled,
		OrderID:      order.ID,
		AccountID:    order.AccountID,
		InstrumentID: order.InstrumentID,
		Kind:         order.Kind,
		Shares:       order.Shares,
		TargetPrice:  order.TargetPrice,
		FillPrice:    fillPrice,
		Timestamp:    time.Now().UTC(),
	})
}

// MarginCall broadcasts a one-shot margin warning for a short position.
func (h *Hub) MarginCall(pos *domain.ShortPosition) {
	h.broadcastJSON(MarginCallMessage{
		Type:             MsgTypeMarginCall,
		PositionID:       pos.ID,
		HolderID:         pos.HolderID,
		InstrumentID:     pos.InstrumentID,
		Shares:           pos.Shares,
		EntryPrice:       pos.EntryPrice,
		LiquidationPrice: pos.LiquidationPrice,
		Timestamp:        time.Now().UTC(),
	})
}

// SplitExecuted broadcasts the before/after state of a stock split.
func (h *Hub) SplitExecuted(split *domain.StockSplit) {
	h.broadcastJSON(SplitMessage{
		Type:         MsgTypeSplit,
		InstrumentID: split.InstrumentID,
		Ratio:        split.Ratio,
		OldShares:    split.OldShares,
		NewShares:    split.NewShares,
		OldPrice:     split.OldPrice,
		NewPrice:     split.NewPrice,
		Timestamp:    time.Now().UTC(),
	})
}

// broadcastJSON is the common marshalling path.
func (h *Hub) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("ws.Hub: broadcast channel full, message dropped")
	}
}

// SendError writes an error message directly to one client's send channel.
func (h *Hub) SendError(client *Client, code, message string) {
	data, err := json.Marshal(ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}
