package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxFeedConnections = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans newly created alerts out to connected operator clients.
type Hub struct {
	conns  map[*websocket.Conn]bool
	mutex  sync.Mutex
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Add registers a connection with the hub.
func (h *Hub) Add(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.conns) >= maxFeedConnections {
		h.logger.Warnf("Max alert feed connections reached (%d)", maxFeedConnections)
		return false
	}
	h.conns[conn] = true
	h.logger.Infof("Alert feed connection added (total: %d)", len(h.conns))
	return true
}

// Remove drops a connection from the hub.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.conns, conn)
	h.logger.Infof("Alert feed connection removed (remaining: %d)", len(h.conns))
}

// Broadcast sends a message to every connected client, dropping connections
// that error.
func (h *Hub) Broadcast(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to write alert feed message: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// AlertFeed upgrades the request to a websocket and streams alerts until the
// client disconnects.
func (h *Handler) AlertFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	if !h.hub.Add(conn) {
		conn.Close()
		return
	}
	defer func() {
		h.hub.Remove(conn)
		conn.Close()
	}()

	// Drain client frames; the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
