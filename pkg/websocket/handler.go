package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type HandlerConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	MaxConnections    int
	EnableCompression bool
	AllowedOrigins    []string
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   HandlerConfig
}

func NewHandler(hub *Hub, config HandlerConfig) *Handler {
	return &Handler{
		hub:    hub,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			EnableCompression: config.EnableCompression,
			CheckOrigin:       originChecker(config.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || candidate == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades an authenticated console request and attaches it to the hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	operatorID := c.GetString("operator_id")
	if operatorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if h.config.MaxConnections > 0 && h.hub.ClientCount() >= h.config.MaxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many console connections"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("UI websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, operatorID)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
