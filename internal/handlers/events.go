package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer = 64
	writeWait   = 10 * time.Second
)

// StreamEvents upgrades to a websocket and pushes every receipt as JSON.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	// Subscribe before the handshake so nothing mined after the client
	// sees the upgrade response is missed.
	receipts, cancel := h.service.Subscribe(eventBuffer)
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	// The client never sends anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case r, ok := <-receipts:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(r); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warningf("Event stream write failed: %v", err)
				}
				return
			}
		}
	}
}
