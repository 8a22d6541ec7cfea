package handler

import (
	"matchchat/backend/internal/chathub"
	"matchchat/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler містить посилання на ChatHub
type Handler struct {
	Hub        *chathub.ManagerService
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewHandler builds the HTTP handlers. An empty allowedOrigins list accepts
// websocket upgrades from any origin.
func NewHandler(hub *chathub.ManagerService, allowedOrigins []string, sendBuffer int) *Handler {
	origins := newOriginPolicy(allowedOrigins)
	return &Handler{
		Hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     origins.check,
		},
		sendBuffer: sendBuffer,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/stats", h.GetStats)
	r.GET("/healthz", h.Healthz)
}

// NewRouter returns a gin engine with recovery, request logging and all routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())
	h.RegisterRoutes(router)
	return router
}
