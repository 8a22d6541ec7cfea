package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"matchchat/backend/internal/config"
	"matchchat/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Notification

	closeOnce sync.Once
}

func NewWebSocketClient(connID string, conn *websocket.Conn, hub *ManagerService, sendBuffer int) *WebSocketClient {
	return &WebSocketClient{
		ConnID: connID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Notification, sendBuffer),
	}
}

func (c *WebSocketClient) GetUserID() string                           { return c.ConnID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Notification { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which makes writePump close the socket.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump decodes one inbound event per frame and forwards it to the hub.
// When the socket dies the client is unregistered, which the coordinator
// treats as a disconnect.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxFrameSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connId", c.ConnID).Msg("websocket read failed")
			}
			return
		}

		var ev models.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Str("connId", c.ConnID).Msg("malformed frame skipped")
			continue
		}
		ev.ConnID = c.ConnID

		if !c.Hub.Submit(ev) {
			return
		}
	}
}

// writePump writes each notification as its own text frame and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case n, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(n); err != nil {
				log.Debug().Err(err).Str("connId", c.ConnID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
