package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"chatsync/internal/metrics"
)

// Metrics records Prometheus request metrics. Paths are labelled by the
// matched route pattern to keep cardinality bounded.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		// Label values are retained by the vectors, so never pass buffer-backed strings
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Route().Path)
		if path == "" || path == "/" {
			path = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}
