package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quarterwave/parley/internal/push"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients are fronted by the deployment's own origin checks.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection, registers it with the hub and
// tells the client its connection id. The socket is push-only downstream;
// the read loop exists to detect the close.
func (s *Server) handleWebSocket(c *gin.Context) {
	ownerID, err := s.resolveOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}

	connectionID := uuid.NewString()
	if err := s.hub.Register(connectionID, ownerID); err != nil {
		log.Printf("server: register connection: %v", err)
		ws.Close()
		return
	}
	s.hub.Attach(connectionID, ws)

	if err := s.hub.Send(c.Request.Context(), connectionID, push.Event{
		Type: "connected",
		Data: map[string]interface{}{"connectionId": connectionID},
	}); err != nil {
		log.Printf("server: send connected event: %v", err)
		s.hub.Deregister(connectionID)
		return
	}

	go s.readLoop(connectionID, ws)
}

// readLoop discards inbound frames and deregisters on close.
func (s *Server) readLoop(connectionID string, ws *websocket.Conn) {
	defer s.hub.Deregister(connectionID)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
