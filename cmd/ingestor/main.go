// The ingestor polls the upstream monitoring feed, upserts the fleet
// registry in Postgres, and announces each completed sync over NATS so
// the API process can reload its map.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/suntrack/fleetmap/internal/adapters/nats"
	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/pkg/config"
	"github.com/suntrack/fleetmap/internal/pkg/logging"
	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// SyncSubject carries one message per completed fleet sync. It lives
// outside the map.> space on purpose: map.> is the engine's own output,
// and the API reloading on its own fleet-reloaded event would loop.
const SyncSubject = "fleet.sync.completed"

type syncNotice struct {
	Plants   int       `json:"plants"`
	SyncedAt time.Time `json:"synced_at"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("fleetmap-ingestor", os.Getenv("LOG_LEVEL"), "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	nc, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, sync notices disabled", "error", err)
	} else {
		defer nc.Drain()
	}

	client := &http.Client{Timeout: 60 * time.Second}
	interval := time.Duration(cfg.Feed.PollSeconds) * time.Second
	slog.Info("ingestor starting", "feed", cfg.Feed.URL, "interval", interval.String())

	// First sync immediately, then on the poll interval.
	if err := syncOnce(ctx, pool, client, nc, cfg.Feed.URL); err != nil {
		slog.Error("initial sync failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := syncOnce(ctx, pool, client, nc, cfg.Feed.URL); err != nil {
				slog.Error("sync failed", "error", err)
			}
		case sig := <-quit:
			slog.Info("shutting down", "signal", sig.String())
			return
		}
	}
}

// syncOnce pulls the full plant list from the feed and upserts it.
// Plants that left the feed keep their rows; the map only shows what
// the feed currently reports, but history stays queryable.
func syncOnce(ctx context.Context, pool *pgxpool.Pool, client *http.Client, nc *nats.Conn, feedURL string) error {
	start := time.Now()
	records, err := fetchFeed(ctx, client, feedURL)
	if err != nil {
		metrics.FeedPollErrors.Inc()
		return err
	}

	if err := upsertPlants(ctx, pool, records); err != nil {
		metrics.FeedPollErrors.Inc()
		return err
	}

	metrics.FeedPollDuration.Observe(time.Since(start).Seconds())
	slog.Info("fleet synced", "plants", len(records), "took", time.Since(start).String())

	if nc != nil {
		notice, err := json.Marshal(syncNotice{Plants: len(records), SyncedAt: time.Now()})
		if err == nil {
			if err := nc.Publish(SyncSubject, notice); err != nil {
				slog.Warn("sync notice publish failed", "error", err)
			}
		}
	}
	return nil
}

func fetchFeed(ctx context.Context, client *http.Client, feedURL string) ([]domain.PlantRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	var records []domain.PlantRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	// Drop rows the map could never place.
	valid := records[:0]
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			slog.Warn("dropping plant with bad coordinates", "id", r.ID, "lat", r.Latitude, "lon", r.Longitude)
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func upsertPlants(ctx context.Context, pool *pgxpool.Pool, records []domain.PlantRecord) error {
	const batchSize = 500
	batch := &pgx.Batch{}
	count := 0

	for _, r := range records {
		batch.Queue(`
			INSERT INTO plants (id, name, status, capacity_kw, current_output_kw, location, updated_at)
			VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, status = EXCLUDED.status,
			    capacity_kw = EXCLUDED.capacity_kw,
			    current_output_kw = EXCLUDED.current_output_kw,
			    location = EXCLUDED.location, updated_at = now()
		`, r.ID, r.Name, r.Status, r.CapacityKW, r.CurrentOutput, r.Longitude, r.Latitude)

		count++
		if count >= batchSize {
			if err := flushBatch(ctx, pool, batch, count); err != nil {
				return err
			}
			batch = &pgx.Batch{}
			count = 0
		}
	}

	if count > 0 {
		return flushBatch(ctx, pool, batch, count)
	}
	return nil
}

func flushBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch, count int) error {
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < count; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}
