package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLabelsSurviveBufferReuse(t *testing.T) {
	// Default (mutable) config: c.Method() points into a reused buffer
	app := fiber.New()
	app.Use(Metrics())
	app.Post("/metrics-test/items", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	app.Get("/metrics-test/items/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Delete("/metrics-test/items/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	requests := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/metrics-test/items", nil),
		httptest.NewRequest(http.MethodGet, "/metrics-test/items/"+strings.Repeat("a", 36), nil),
		httptest.NewRequest(http.MethodDelete, "/metrics-test/items/1", nil),
	}
	for i := 0; i < 10; i++ {
		for _, req := range requests {
			resp, err := app.Test(req.Clone(req.Context()), -1)
			require.NoError(t, err)
			resp.Body.Close()
		}
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	methods := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "chatsync_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var method, path string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "method":
					method = l.GetValue()
				case "path":
					path = l.GetValue()
				}
			}
			if strings.HasPrefix(path, "/metrics-test/") {
				methods[method] = true
			}
		}
	}
	assert.Equal(t, map[string]bool{"POST": true, "GET": true, "DELETE": true}, methods)
}
