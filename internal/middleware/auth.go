package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"chatsync/internal/logger"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/internal/utils"
)

// Auth validates the session cookie and loads the user
func Auth(tokens *utils.TokenManager, users store.UserStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from cookie
		tokenString := c.Cookies(utils.CookieName)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized - No token provided",
			})
		}

		// Validate token
		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized - Invalid token",
			})
		}

		user, err := users.FindByID(c.UserContext(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"message": "Unauthorized - User not found",
				})
			}
			l := logger.Ctx(c.UserContext())
			l.Error().Err(err).Msg("failed to load session user")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "Internal server error",
			})
		}

		// Store user info in context
		c.Locals("userID", user.ID)
		c.Locals("user", user)

		l := logger.Ctx(c.UserContext()).With().Str(logger.FieldUserID, user.ID).Logger()
		c.SetUserContext(logger.WithLogger(c.UserContext(), l))

		return c.Next()
	}
}

// GetUserID gets user ID from context
func GetUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals("userID").(string)
	if !ok {
		return ""
	}
	return userID
}

// GetUser gets the authenticated user from context
func GetUser(c *fiber.Ctx) *models.User {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil
	}
	return user
}
