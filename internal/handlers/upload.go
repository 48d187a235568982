package handlers

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"chatsync/internal/media"
)

// GetFile serves stored images
func (h *Handler) GetFile(c *fiber.Ctx) error {
	filePath, ok := h.uploader.Resolve(c.Params("type"), c.Params("filename"))
	if !ok {
		return badRequest(c, "Invalid file path")
	}

	// Check if file exists
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "File not found",
		})
	}
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, media.ContentType(filePath))
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.SendFile(filePath)
}
