package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"chatsync/internal/logger"
	"chatsync/internal/media"
	"chatsync/internal/service"
	"chatsync/internal/store"
	"chatsync/internal/utils"
	"chatsync/internal/websocket"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies shared by the HTTP handlers
type Handler struct {
	messages      *service.MessageService
	users         store.UserStore
	tokens        *utils.TokenManager
	uploader      *media.LocalUploader
	hub           *websocket.Hub
	pinger        Pinger
	secureCookies bool
}

// Options configures a Handler
type Options struct {
	Messages      *service.MessageService
	Users         store.UserStore
	Tokens        *utils.TokenManager
	Uploader      *media.LocalUploader
	Hub           *websocket.Hub
	Pinger        Pinger // optional
	SecureCookies bool
}

// New creates a Handler
func New(opts Options) *Handler {
	return &Handler{
		messages:      opts.Messages,
		users:         opts.Users,
		tokens:        opts.Tokens,
		uploader:      opts.Uploader,
		hub:           opts.Hub,
		pinger:        opts.Pinger,
		secureCookies: opts.SecureCookies,
	}
}

// respondError maps a service error to a JSON response. Internal causes
// are logged and never shown to the caller.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindValidation:
		status = fiber.StatusBadRequest
	case service.KindNotFound:
		status = fiber.StatusNotFound
	case service.KindForbidden:
		status = fiber.StatusForbidden
	}

	message := "Internal server error"
	var se *service.Error
	if errors.As(err, &se) && status != fiber.StatusInternalServerError {
		message = se.Message
	}

	if status == fiber.StatusInternalServerError {
		l := logger.Ctx(c.UserContext())
		l.Error().Err(err).Msg("request failed")
	}

	return c.Status(status).JSON(fiber.Map{
		"message": message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
	})
}

// Health reports liveness and store reachability
func (h *Handler) Health(c *fiber.Ctx) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.UserContext()); err != nil {
			l := logger.Ctx(c.UserContext())
			l.Warn().Err(err).Msg("health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
