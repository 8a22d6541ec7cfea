package handler

import (
	"matchchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(uuid.NewString(), conn, h.Hub, h.sendBuffer)

	// The hub may already be shutting down.
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	client.Run()
}
