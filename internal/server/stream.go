package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// handleAffiliateStream serves affiliate changes as server-sent events until the client disconnects.
func (h *httpHandler) handleAffiliateStream(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Message: "Unauthorized"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, claims.UserID)
	defer cleanup()

	h.metrics.streamOpened()
	defer h.metrics.streamClosed()
	h.logger.Debug("affiliate stream opened", zap.String("user_id", claims.UserID))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.sendHeartbeat(c)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			c.SSEvent(message.EventType, message.Change)
			c.Writer.Flush()
		case <-ticker.C:
			h.sendHeartbeat(c)
		}
	}
}

func (h *httpHandler) sendHeartbeat(c *gin.Context) {
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: time.Now().UTC(), Source: realtimeSourceBackend})
	c.Writer.Flush()
}
