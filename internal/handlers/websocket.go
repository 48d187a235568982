package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	ws "chatsync/internal/websocket"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	// Check if this is a WebSocket upgrade request
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"message": "WebSocket upgrade required",
	})
}

// WebSocket serves the push channel of the authenticated user
func (h *Handler) WebSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		// Get user info from context (set by auth middleware)
		userID, _ := c.Locals("userID").(string)
		if userID == "" {
			c.Close()
			return
		}

		client := ws.NewClient(userID, c, h.hub)
		client.Serve(context.Background())
	})
}

// GetOnlineUsers returns the identities currently online
func (h *Handler) GetOnlineUsers(c *fiber.Ctx) error {
	online, err := h.hub.OnlineUsers(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(online)
}
