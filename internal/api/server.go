package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/buffr/internal/chain"
	"github.com/p-blackswan/buffr/internal/health"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/metrics"
	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/prompt"
	"github.com/p-blackswan/buffr/internal/requestid"
	"github.com/p-blackswan/buffr/internal/resolver"
	"github.com/p-blackswan/buffr/internal/slack"
	"github.com/p-blackswan/buffr/internal/tool"
	"github.com/p-blackswan/buffr/internal/workitem"
)

// Config holds configuration for the API server.
type Config struct {
	ListenAddr  string
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Deps are the services the handlers call. Notifier, Checker and Metrics
// may be nil.
type Deps struct {
	Projects     *project.Store
	Prompts      *prompt.Store
	Integrations *integration.Store
	Registrar    *integration.Registrar
	Tools        *tool.Registry
	Resolver     *resolver.Resolver
	Chain        *chain.Chain
	WorkItems    *workitem.Aggregator
	Notifier     *slack.Notifier
	Checker      *health.Checker
	Metrics      *metrics.Metrics
}

// Server is the buffr HTTP API.
type Server struct {
	app     *fiber.App
	deps    Deps
	limiter *rateLimiter
	stop    chan struct{}
	logger  zerolog.Logger
	config  Config
	now     func() time.Time
}

// NewServer creates and configures the API server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
		BodyLimit:             1 << 20,
	})

	s := &Server{
		app:    app,
		deps:   deps,
		stop:   make(chan struct{}),
		logger: logger,
		config: cfg,
		now:    time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if s.config.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.config.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		}))
	}

	if s.config.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(s.config.RateLimit)
		go s.limiter.run(s.stop)
		s.app.Use(s.limiter.middleware())
	}

	s.app.Use(NewAuthMiddleware(s.config.Auth, s.logger))

	// Request log and HTTP metrics
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Render now so the logged status is the final one.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}
		status := c.Response().StatusCode()
		elapsed := time.Since(start)

		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveHTTP(c.Method(), c.Route().Path, strconv.Itoa(status), elapsed.Seconds())
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals(requestid.LocalsKey))).
			Msg("api request")
		return nil
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", health.LivenessHandler())
	if s.deps.Checker != nil {
		s.app.Get("/readyz", s.deps.Checker.ReadinessHandler())
	} else {
		s.app.Get("/readyz", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ready"})
		})
	}
	if s.deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")
	newProjectHandlers(s).RegisterRoutes(v1)
	newPromptHandlers(s).RegisterRoutes(v1)
	newToolHandlers(s).RegisterRoutes(v1)
}

// Start listens on the configured address. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("API server shutting down")
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, _ := statusFor(err)
		ev := logger.Debug()
		if status >= fiber.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Err(err).
			Int("status", status).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("request failed")
		return writeError(c, err)
	}
}
