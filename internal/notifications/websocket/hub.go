package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Hub pushes domain events to connected dashboard clients. It subscribes
// to the in-process event bus once and fans every event out to all open
// connections; a client that cannot keep up is dropped.
type Hub struct {
	bus      *notifications.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

type client struct {
	id   uuid.UUID
	user uuid.UUID
	conn *websocket.Conn
	send chan notifications.Event
}

// NewHub creates the hub and starts its fan-out loop
func NewHub(bus *notifications.Bus, logger *zap.Logger) *Hub {
	h := &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[uuid.UUID]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	events := h.bus.Subscribe()
	for event := range events {
		h.mu.RLock()
		for _, c := range h.clients {
			select {
			case c.send <- event:
			default:
				// slow consumer; drop the event, not the connection
			}
		}
		h.mu.RUnlock()
	}
}

// Handle upgrades an authenticated request to a websocket connection
func (h *Hub) Handle(c *gin.Context) {
	user, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:   uuid.New(),
		user: user.ID,
		conn: conn,
		send: make(chan notifications.Event, sendBuffer),
	}

	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()

	h.logger.Info("Dashboard client connected",
		zap.String("connection_id", cl.id.String()),
		zap.String("user_id", user.ID.String()))

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

// writeLoop pushes events and keepalive pings until the connection dies
func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(cl)
	}()

	for {
		select {
		case event, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames; it exists to detect disconnects
func (h *Hub) readLoop(cl *client) {
	defer h.drop(cl)
	cl.conn.SetReadLimit(512)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl.id)
	h.mu.Unlock()

	cl.conn.Close()
	h.logger.Info("Dashboard client disconnected", zap.String("connection_id", cl.id.String()))
}

// ClientCount reports the number of open connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
