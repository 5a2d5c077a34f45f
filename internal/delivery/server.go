package delivery

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wachat-ws/internal/auth"
	"wachat-ws/internal/config"
)

// Pinger is a backing service the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	config    *config.Config
	wsManager *WSManager
	verifier  *auth.Verifier
	checks    map[string]Pinger
	app       *fiber.App
	log       zerolog.Logger
}

func NewServer(config *config.Config, wsManager *WSManager, verifier *auth.Verifier, checks map[string]Pinger, log zerolog.Logger) *Server {
	s := &Server{
		config:    config,
		wsManager: wsManager,
		verifier:  verifier,
		checks:    checks,
		log:       log.With().Str("component", "http").Logger(),
	}
	s.app = s.buildApp()
	return s
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "WaChat WebSocket & REST Server",
		DisableStartupMessage: !s.config.IsDevelopment(),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,X-User-ID",
		ExposeHeaders:    "Content-Length,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400,
	}

	// Set origins based on environment
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		s.log.Info().Str("origins", corsConfig.AllowOrigins).Msg("CORS configured for production")
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
		s.log.Info().Msg("CORS configured for development with wildcard origin")
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// REST API routes
	api := app.Group("/api", auth.Middleware(s.verifier, true))
	api.Post("/chat/messages", s.handleSendMessage)
	api.Put("/chat/messages/read", s.handleMarkRead)
	api.Delete("/chat/messages/:message_id", s.handleDeleteMessage)
	api.Post("/status", s.handleCreateStatus)
	api.Get("/status", s.handleListStatuses)
	api.Put("/status/:status_id/view", s.handleViewStatus)
	api.Delete("/status/:status_id", s.handleDeleteStatus)
	api.Get("/presence/:user_id", s.handleGetPresence)

	// WebSocket middleware. With token checks on, the socket is authenticated
	// before the upgrade and user_connected must name the same user.
	app.Use("/ws", auth.Middleware(s.verifier, s.verifier.Enabled()), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.wsManager.HandleConnection))

	return app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	deps := fiber.Map{}
	healthy := true
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}

	status := "ok"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"message":      "WaChat WebSocket server is running",
		"port":         s.config.Port,
		"environment":  s.config.Environment,
		"online_users": s.wsManager.GetActiveConnections(),
		"dependencies": deps,
	})
}

func (s *Server) Start() error {
	s.log.Info().Str("port", s.config.Port).Msg("WaChat server (WebSocket + REST) starting")
	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
