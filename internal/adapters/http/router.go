package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 240 requests per minute per IP. Map interaction is
	// chattier than a typical read API, so the cap sits higher.
	app.Use(limiter.New(limiter.Config{
		Max:        240,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1. Camera mutations are in-memory and fast; 5s covers
	// the handlers that touch Postgres or Valkey.
	v1 := app.Group("/v1")

	v1.Get("/map/state", MapStateHandler(deps))
	v1.Post("/map/pan", PanHandler(deps))
	v1.Post("/map/zoom", ZoomHandler(deps))
	v1.Post("/map/animate", AnimateHandler(deps))
	v1.Post("/map/reset", timeout.NewWithContext(ResetViewHandler(deps), 5*time.Second))
	v1.Post("/map/resize", ResizeHandler(deps))
	v1.Get("/map/project", ProjectHandler(deps))
	v1.Get("/map/unproject", UnprojectHandler(deps))
	v1.Get("/map/renderer", ActiveRendererHandler(deps))
	v1.Post("/map/renderer", SwitchRendererHandler(deps))
	v1.Get("/map/overlay.svg", OverlayHandler(deps))

	v1.Get("/markers", ListMarkersHandler(deps))
	v1.Post("/markers", timeout.NewWithContext(CreateMarkerHandler(deps), 5*time.Second))
	v1.Get("/markers/near", NearMarkersHandler(deps))
	v1.Get("/markers/:id", GetMarkerHandler(deps))
	v1.Patch("/markers/:id", timeout.NewWithContext(UpdateMarkerHandler(deps), 5*time.Second))
	v1.Delete("/markers/:id", timeout.NewWithContext(DeleteMarkerHandler(deps), 5*time.Second))

	v1.Get("/regions", timeout.NewWithContext(ListRegionsHandler(deps), 5*time.Second))
	v1.Get("/regions/classify", ClassifyHandler(deps))
	v1.Get("/regions/:id", GetRegionHandler(deps))
	v1.Post("/regions/select", timeout.NewWithContext(SelectRegionHandler(deps), 5*time.Second))

	v1.Get("/fleet/status", timeout.NewWithContext(FleetStatusHandler(deps), 15*time.Second))
	v1.Post("/fleet/reload", timeout.NewWithContext(ReloadFleetHandler(deps), 30*time.Second))
	v1.Get("/fleet/:id", timeout.NewWithContext(GetPlantHandler(deps), 5*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
