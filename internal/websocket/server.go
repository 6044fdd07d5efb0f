package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/irfndi/AetherDEX/apps/staking/internal/auth"
	"github.com/sirupsen/logrus"
)

// Server represents the WebSocket server
type Server struct {
	Hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server accepting the given origins
func NewServer(allowedOrigins []string) *Server {
	return &Server{
		Hub: NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return auth.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// Start starts the WebSocket server
func (s *Server) Start() {
	go s.Hub.Run()
	logrus.Info("WebSocket server started")
}

// Stop stops the WebSocket server
func (s *Server) Stop() {
	s.Hub.Stop()
	logrus.Info("WebSocket server stopped")
}

// HandlePoolsWebSocket handles WebSocket connections for pool updates
func (s *Server) HandlePoolsWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := NewClient(conn, s.Hub, uuid.NewString())
	if !request(s.Hub, s.Hub.Register, client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	logrus.WithField("client_id", client.ID).Info("Pool WebSocket client connected")
}

// HandleWebSocketStats returns WebSocket connection statistics
func (s *Server) HandleWebSocketStats(c *gin.Context) {
	stats := s.Hub.GetStats()
	stats.ActiveConnections = s.Hub.GetClientCount()
	stats.TotalSubscriptions = s.Hub.GetSubscriptionCount()
	stats.LastUpdate = time.Now()

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers WebSocket routes with the Gin router
func (s *Server) RegisterRoutes(router *gin.Engine) {
	ws := router.Group("/ws")
	{
		ws.GET("/pools", s.HandlePoolsWebSocket)
		ws.GET("/stats", s.HandleWebSocketStats)
	}
}
