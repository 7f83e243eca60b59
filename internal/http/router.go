package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"paxth/internal/bootstrap"
	"paxth/internal/metrics"
)

// bodyLimit leaves room for a base64-encoded document at the upload cap.
const bodyLimit = 40 << 20

type Server struct {
	app     *fiber.App
	runtime *bootstrap.App
	runs    *runRegistry
	logger  *slog.Logger
}

func NewServer(rt *bootstrap.App) *Server {
	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})
	logger := rt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runs := newRunRegistry(defaultRunLimit)

	// Inject runtime and run registry into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("runtime", rt)
		c.Locals("runs", runs)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Locals("logger", logger)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		// Route patterns keep run ids out of metric labels.
		path := c.Route().Path

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		attrs := []any{
			"request_id", reqID,
			"method", method,
			"path", c.Path(),
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if runID := c.Locals("run_id"); runID != nil {
			attrs = append(attrs, "run_id", runID)
		}
		logger.Info("request", attrs...)

		return err
	})

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity and the scraping chain.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "disabled"
		if rt.Store != nil {
			dbStatus = "ok"
			if err := rt.Store.Ping(ctx); err != nil {
				dbStatus = "error"
			}
		}

		redisStatus := "disabled"
		if rt.Redis != nil {
			if err := rt.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		browserStatus := "disabled"
		if rt.Config != nil && rt.Config.Browser.Enabled {
			browserStatus = "enabled"
		}

		extractorStatus := "ok"
		if rt.Extractor != nil {
			if err := rt.Extractor.Configured(""); err != nil {
				extractorStatus = "not_configured"
			}
		}

		status := "ok"
		if dbStatus == "error" || redisStatus == "error" {
			status = "error"
		}

		var chain []string
		if rt.Orchestrator != nil {
			chain = rt.Orchestrator.Chain()
		}

		return c.JSON(fiber.Map{
			"status":    status,
			"db":        dbStatus,
			"redis":     redisStatus,
			"browser":   browserStatus,
			"extractor": extractorStatus,
			"chain":     chain,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	rateMw := func(c *fiber.Ctx) error { return c.Next() }
	if rt.Redis != nil && rt.Config != nil {
		rateMw = rateLimitMiddleware(rt.Config, rt.Redis)
	}

	v1 := app.Group("/v1", rateMw)
	registerV1Routes(v1)

	return &Server{
		app:     app,
		runtime: rt,
		runs:    runs,
		logger:  logger,
	}
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.runtime.Config.Server.Host, s.runtime.Config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight runs.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerV1Routes(group fiber.Router) {
	group.Get("/categories", listCategoriesHandler)
	group.Get("/categories/:name", getCategoryHandler)
	group.Post("/runs", createRunHandler)
	group.Get("/runs", listRunsHandler)
	group.Post("/runs/export", exportRunsHandler)
	group.Get("/runs/:id", getRunHandler)
	group.Post("/runs/:id/reconcile", reconcileRunHandler)
	group.Get("/runs/:id/export", exportRunHandler)
	group.Get("/artifacts", listArtifactsHandler)
	group.Get("/artifacts/:name", getArtifactHandler)
}
