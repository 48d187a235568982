package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"chatsync/internal/logger"
)

// RequestLogger creates a child logger per request, carries it in the
// user context, and logs the completed request. It expects the requestid
// middleware to run first.
func RequestLogger(base zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		child := base.With().
			Str(logger.FieldRequestID, c.GetRespHeader(fiber.HeaderXRequestID)).
			Str(logger.FieldMethod, c.Method()).
			Str(logger.FieldPath, c.Path()).
			Str(logger.FieldClientIP, c.IP()).
			Logger()
		c.SetUserContext(logger.WithLogger(c.UserContext(), child))

		chainErr := c.Next()
		if chainErr != nil {
			// Let the app error handler set the status before logging
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				c.Status(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		evt := child.Info()
		switch {
		case status >= 500:
			evt = child.Error()
		case status >= 400:
			evt = child.Warn()
		}
		evt = evt.
			Int(logger.FieldStatus, status).
			Float64(logger.FieldLatency, float64(time.Since(start).Microseconds())/1000)

		if userID := GetUserID(c); userID != "" {
			evt = evt.Str(logger.FieldUserID, userID)
		}
		evt.Msg("request completed")

		return nil
	}
}
