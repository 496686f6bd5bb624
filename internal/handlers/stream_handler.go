package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"

	"custodia/internal/logger"
	"custodia/internal/middleware"
	"custodia/internal/stream"
)

const (
	// writeWait bounds a single frame write to a slow client.
	writeWait = 10 * time.Second
	// pingInterval keeps idle connections alive through proxies.
	pingInterval = 30 * time.Second
)

// StreamHandler serves the live price feed over websocket.
type StreamHandler struct {
	hub *stream.Hub
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Prices upgrades the connection and forwards price updates to the client
// @Summary     Stream live prices
// @Description Upgrade to a websocket and receive price updates as JSON text frames. Browsers cannot set headers on websocket requests, so the access token is passed as a query parameter.
// @Tags        stream
// @Param       token query string true "JWT access token"
// @Success     101 {string} string "Switching protocols"
// @Failure     401 {object} ErrorResponse "Invalid or missing token"
// @Router      /ws/prices [get]
func (h *StreamHandler) Prices(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "UNAUTHORIZED", "message": "Token query parameter is required"},
		})
		return
	}
	claims, err := middleware.ValidateAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "UNAUTHORIZED", "message": "Invalid or expired token"},
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		logger.Get().Warnw("websocket accept failed", "error", err, "user_id", claims.UserID)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	logger.Get().Infow("price stream subscriber connected",
		"user_id", claims.UserID,
		"subscribers", h.hub.Count(),
	)

	// CloseRead consumes incoming frames and cancels the context when the
	// client goes away. The feed is one-directional.
	ctx := conn.CloseRead(c.Request.Context())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := pingConn(ctx, conn); err != nil {
				return
			}
		case msg, ok := <-sub.Messages():
			if !ok {
				// The hub dropped this subscriber for falling behind.
				conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := writeFrame(ctx, conn, msg); err != nil {
				logger.Get().Debugw("price stream write failed", "error", err, "user_id", claims.UserID)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, msg)
}

func pingConn(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Ping(pingCtx)
}
