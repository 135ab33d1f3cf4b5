// Package httpapi serves the operator API: health, catalog, ledger lookups,
// manual reconciliation, Prometheus metrics and the Telegram webhook.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xraph/starpay"
)

// WebhookPath is where Telegram delivers updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// Server wires the engine into a fiber app.
type Server struct {
	engine     *starpay.Engine
	adminToken string
	gatherer   prometheus.Gatherer
	webhook    http.Handler
	logger     zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAdminToken protects /v1 with a bearer token. Without one /v1 is open.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// WithGatherer exposes the registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithTelegramWebhook mounts the bot's webhook handler on WebhookPath.
func WithTelegramWebhook(h http.Handler) Option {
	return func(s *Server) { s.webhook = h }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the fiber app.
func New(engine *starpay.Engine, opts ...Option) *fiber.App {
	s := &Server{engine: engine, logger: engine.Logger()}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "starpay",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(s.logRequests)

	app.Get("/healthz", s.health)
	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.webhook != nil {
		app.Post(WebhookPath, adaptor.HTTPHandler(s.webhook))
	}

	v1 := app.Group("/v1")
	if s.adminToken != "" {
		v1.Use(keyauth.New(keyauth.Config{
			Validator:    s.validateToken,
			ErrorHandler: s.unauthorized,
		}))
	}
	v1.Get("/plans", s.listPlans)
	v1.Get("/charges", s.listCharges)
	v1.Get("/charges/:chargeID", s.getCharge)
	v1.Post("/charges/:chargeID/reconcile", s.reconcile)
	v1.Get("/activations", s.listActivations)

	return app
}

func (s *Server) validateToken(_ *fiber.Ctx, key string) (bool, error) {
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminToken)) == 1 {
		return true, nil
	}
	return false, keyauth.ErrMissingOrMalformedAPIKey
}

func (s *Server) unauthorized(c *fiber.Ctx, _ error) error {
	return writeError(c, fiber.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		// The error handler runs after this middleware returns.
		status = statusOf(err)
	}

	ev := s.logger.Debug()
	if status >= fiber.StatusInternalServerError {
		ev = s.logger.Warn()
	}
	ev.Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("elapsed", time.Since(start)).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Msg("http request")
	return err
}
