package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatsync/internal/handlers"
	"chatsync/internal/middleware"
	"chatsync/internal/store"
	"chatsync/internal/utils"
)

// Deps are the collaborators the routes are wired to
type Deps struct {
	Handler       *handlers.Handler
	Tokens        *utils.TokenManager
	Users         store.UserStore
	Logger        zerolog.Logger
	CORSOrigins   string // comma separated
	AuthRateLimit int
	APIRateLimit  int
}

// NewApp creates the Fiber app with global middleware and all routes
func NewApp(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "chatsync",
		DisableStartupMessage: true,
		Immutable:             true, // params are kept past the request
		BodyLimit:             8 * 1024 * 1024, // base64 images
		ErrorHandler:          errorHandler,
	})

	// Middleware
	app.Use(middleware.Metrics())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(deps.Logger))
	app.Use(recover.New())
	origins := strings.TrimSpace(deps.CORSOrigins)
	if origins == "" {
		origins = "http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "*", // fiber rejects credentials with a wildcard
	}))

	SetupRoutes(app, deps)
	return app
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Deps) {
	h := deps.Handler
	auth := middleware.Auth(deps.Tokens, deps.Users)

	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Serve uploaded files (public)
	app.Get("/uploads/:type/:filename", h.GetFile)

	api := app.Group("/api")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", middleware.AuthRateLimiter(deps.AuthRateLimit), h.Signup)
	authGroup.Post("/login", middleware.AuthRateLimiter(deps.AuthRateLimit), h.Login)
	authGroup.Post("/logout", h.Logout)
	authGroup.Get("/check", auth, h.CheckAuth)
	authGroup.Put("/update-profile", auth, middleware.APIRateLimiter(deps.APIRateLimit), h.UpdateProfile)

	// Message routes (protected)
	messages := api.Group("/message", auth, middleware.APIRateLimiter(deps.APIRateLimit))
	messages.Get("/users", h.GetUsers)
	messages.Get("/online", h.GetOnlineUsers)
	messages.Post("/send/:peerId", h.SendMessage)
	messages.Get("/:peerId", h.GetMessages)
	messages.Put("/:id", h.EditMessage)
	messages.Delete("/:id", h.DeleteMessage)

	// WebSocket route (protected)
	api.Get("/ws", auth, handlers.WebSocketUpgrade, h.WebSocket())
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"message": message,
	})
}
