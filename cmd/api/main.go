package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/suntrack/fleetmap/internal/adapters/http"
	natsadapter "github.com/suntrack/fleetmap/internal/adapters/nats"
	"github.com/suntrack/fleetmap/internal/adapters/postgres"
	"github.com/suntrack/fleetmap/internal/adapters/renderer/tile"
	"github.com/suntrack/fleetmap/internal/adapters/renderer/vector"
	"github.com/suntrack/fleetmap/internal/adapters/valkey"
	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/core/projection"
	"github.com/suntrack/fleetmap/internal/core/usecases"
	"github.com/suntrack/fleetmap/internal/pkg/config"
	"github.com/suntrack/fleetmap/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("fleetmap-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Projection: the one shared geo<->plane transform.
	transform, err := projection.New(
		domain.Bounds{
			MinLat: cfg.Map.MinLat, MaxLat: cfg.Map.MaxLat,
			MinLon: cfg.Map.MinLon, MaxLon: cfg.Map.MaxLon,
		},
		domain.PlaneSize{W: cfg.Map.PlaneWidth, H: cfg.Map.PlaneHeight},
	)
	if err != nil {
		log.Fatalf("projection: %v", err)
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	plants := postgres.NewPlantRepo(db)

	// Cache
	cache, err := valkey.NewCache(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey cache unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	// Durable custom markers
	markerRepo, err := valkey.NewMarkerRepo(cfg.Valkey.Addr, cfg.Valkey.MarkerKey)
	if err != nil {
		slog.Warn("marker persistence unavailable", "error", err)
		markerRepo = nil
	} else {
		defer markerRepo.Close()
	}

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
		publisher = nil
	} else {
		defer publisher.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Map engine
	initial := domain.Viewport{
		OriginX: 0, OriginY: 0,
		Width:  cfg.Map.PlaneWidth / cfg.Map.InitialScale,
		Height: cfg.Map.PlaneHeight / cfg.Map.InitialScale,
		Scale:  cfg.Map.InitialScale,
	}
	// Typed nil pointers must not reach the engine as non-nil interfaces.
	var repoPort ports.MarkerRepository
	if markerRepo != nil {
		repoPort = markerRepo
	}
	var cachePort ports.CacheService
	if cache != nil {
		cachePort = cache
	}
	var publisherPort ports.EventPublisher
	if publisher != nil {
		publisherPort = publisher
	}

	engine := usecases.NewEngine(transform, initial, cfg.Map.MinZoom, cfg.Map.MaxZoom,
		repoPort, cachePort, publisherPort,
		usecases.DefaultRegions(), cfg.Map.EnforceBounds)

	// Renderers
	vec := vector.New(transform)
	tileManager := tile.NewManager(tile.NewHTTPProvider(cfg.Tiles.URLTemplate), cfg.Tiles.CacheSize)
	tilePool := tile.NewPool(cfg.Tiles.Workers)
	defer tilePool.Shutdown()
	tiles := tile.New(transform, tileManager, tilePool, 6)

	// Registration order matters: the first renderer is the default, so
	// the configured one goes in first.
	if cfg.Map.Renderer == tile.Name {
		engine.RegisterRenderer(tiles)
		engine.RegisterRenderer(vec)
	} else {
		engine.RegisterRenderer(vec)
		engine.RegisterRenderer(tiles)
	}

	if err := engine.Restore(ctx); err != nil {
		slog.Warn("marker restore failed", "error", err)
	}
	if err := engine.InitMap("map-root"); err != nil {
		log.Fatalf("init map: %v", err)
	}

	// Initial fleet load; the ingestor keeps it fresh afterwards.
	if records, err := plants.FetchPlants(ctx); err != nil {
		slog.Warn("initial fleet load failed", "error", err)
	} else {
		engine.LoadPlants(ctx, records)
	}

	// Reload the fleet whenever the ingestor finishes a sync.
	if natsConn != nil {
		_, err := natsConn.Subscribe("fleet.sync.completed", func(*nats.Msg) {
			records, err := plants.FetchPlants(ctx)
			if err != nil {
				slog.Warn("fleet reload after sync failed", "error", err)
				return
			}
			engine.LoadPlants(ctx, records)
		})
		if err != nil {
			slog.Warn("sync subscription failed", "error", err)
		}
	}

	// Animation pump
	go func() {
		ticker := time.NewTicker(16 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				engine.Viewport().Step(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()

	deps := &http.Dependencies{
		Engine: engine,
		Vector: vec,
		Plants: plants,
		NATS:   natsConn,
		DB:     db,
		Cache:  cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "FleetMap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.suntrack.io",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "renderer", engine.ActiveRenderer())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
