package handlers

import (
	"github.com/gofiber/fiber/v2"

	"chatsync/internal/middleware"
	"chatsync/internal/service"
)

// EditMessageRequest represents edit message request body
type EditMessageRequest struct {
	Text string `json:"text"`
}

// GetUsers returns the contact list, most recent conversation first
func (h *Handler) GetUsers(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	peers, err := h.messages.ListPeers(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(peers)
}

// GetMessages returns the conversation with a peer, oldest first
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	peerID := c.Params("peerId")

	messages, err := h.messages.ListConversation(c.UserContext(), userID, peerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(messages)
}

// SendMessage sends a direct message to a peer
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	peerID := c.Params("peerId")

	var req service.SendInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	message, err := h.messages.Send(c.UserContext(), userID, peerID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

// EditMessage replaces the text of the caller's message
func (h *Handler) EditMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	messageID := c.Params("id")

	var req EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	message, err := h.messages.Edit(c.UserContext(), userID, messageID, req.Text)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(message)
}

// DeleteMessage removes the caller's message
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	messageID := c.Params("id")

	if err := h.messages.Delete(c.UserContext(), userID, messageID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Message deleted",
	})
}
