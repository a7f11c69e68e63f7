package usecases

import (
	"context"
	"testing"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

type fakeCache struct {
	store map[string][]byte
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.store[key]; ok {
		return v, nil
	}
	return nil, context.Canceled
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.store[key] = value
	c.sets++
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

func TestClassifyIsDeterministic(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	geo := domain.GeoPoint{Lat: 13.7563, Lon: 100.5018}

	first := s.Classify(geo)
	if first != "bangkok" {
		t.Fatalf("bangkok coords classified as %q", first)
	}
	for i := 0; i < 10; i++ {
		if got := s.Classify(geo); got != first {
			t.Fatalf("classification flapped: %q then %q", first, got)
		}
	}
}

func TestClassifyNearestCentroid(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	cases := map[string]domain.GeoPoint{
		"north":     {Lat: 19.0, Lon: 99.0},
		"south":     {Lat: 8.0, Lon: 99.8},
		"northeast": {Lat: 16.5, Lon: 103.0},
	}
	for want, geo := range cases {
		if got := s.Classify(geo); got != want {
			t.Errorf("Classify(%v) = %q, want %q", geo, got, want)
		}
	}
}

func TestRecomputeCountsSumToFleetSize(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	records := []domain.PlantRecord{
		{ID: "p1", Status: "online", CapacityKW: 100, Latitude: 13.7563, Longitude: 100.5018},
		{ID: "p2", Status: "online", CapacityKW: 250, Latitude: 18.79, Longitude: 98.98},
		{ID: "p3", Status: "offline", CapacityKW: 50, Latitude: 8.5, Longitude: 99.5},
		{ID: "p4", Status: "online", CapacityKW: 75, Latitude: 13.7563, Longitude: 100.5018},
	}
	s.Recompute(context.Background(), records)

	total := 0
	capacity := 0.0
	for _, r := range s.Regions(context.Background()) {
		total += r.Stats.Count
		capacity += r.Stats.TotalCapacity
	}
	if total != len(records) {
		t.Fatalf("region counts sum to %d, want %d", total, len(records))
	}
	if capacity != 475 {
		t.Fatalf("capacity sum %v, want 475", capacity)
	}

	bkk, ok := s.Region("bangkok")
	if !ok {
		t.Fatal("bangkok missing")
	}
	if bkk.Stats.Count != 2 || bkk.Stats.StatusCounts["online"] != 2 {
		t.Fatalf("bangkok stats %+v", bkk.Stats)
	}
}

func TestRecomputeReplacesStaleStats(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	ctx := context.Background()
	s.Recompute(ctx, []domain.PlantRecord{
		{ID: "p1", Status: "online", CapacityKW: 100, Latitude: 13.7563, Longitude: 100.5018},
	})
	s.Recompute(ctx, nil)

	for _, r := range s.Regions(ctx) {
		if r.Stats.Count != 0 || r.Stats.TotalCapacity != 0 {
			t.Fatalf("stale stats survived recompute: %s %+v", r.ID, r.Stats)
		}
	}
}

func TestShapeAliasResolvesToSameRegion(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	s.RegisterShapeAlias("svg-path-7", "north")

	id, ok := s.ResolveShape("svg-path-7")
	if !ok || id != "north" {
		t.Fatalf("ResolveShape = %q, %v", id, ok)
	}
	if _, ok := s.ResolveShape("svg-path-99"); ok {
		t.Fatal("unknown shape resolved")
	}

	byAlias, ok := s.Region("svg-path-7")
	if !ok || byAlias.ID != "north" {
		t.Fatalf("Region by alias = %+v, %v", byAlias, ok)
	}
}

func TestRegionsSnapshotIsIsolated(t *testing.T) {
	s := NewRegionService(DefaultRegions(), nil)
	ctx := context.Background()
	s.Recompute(ctx, []domain.PlantRecord{
		{ID: "p1", Status: "online", CapacityKW: 100, Latitude: 13.7563, Longitude: 100.5018},
	})

	snap := s.Regions(ctx)
	for i := range snap {
		snap[i].Stats.StatusCounts["online"] = 999
	}

	bkk, _ := s.Region("bangkok")
	if bkk.Stats.StatusCounts["online"] == 999 {
		t.Fatal("snapshot mutation leaked into the region table")
	}
}

func TestRecomputeWritesCache(t *testing.T) {
	cache := newFakeCache()
	s := NewRegionService(DefaultRegions(), cache)
	s.Recompute(context.Background(), []domain.PlantRecord{
		{ID: "p1", Status: "online", CapacityKW: 100, Latitude: 13.7563, Longitude: 100.5018},
	})
	if cache.sets != 1 {
		t.Fatalf("cache writes %d, want 1", cache.sets)
	}
	if _, ok := cache.store[regionStatsCacheKey]; !ok {
		t.Fatal("stats key missing from cache")
	}
}
