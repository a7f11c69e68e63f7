package usecases

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/pkg/geospatial"
)

const regionStatsCacheKey = "fleetmap:regions:stats"

// RegionService assigns markers to administrative regions by nearest
// centroid and keeps per-region fleet aggregates. The table is small
// (tens of entries), so classification is a linear scan.
type RegionService struct {
	mu sync.Mutex

	regions []domain.Region
	// shapeAliases maps renderer-specific shape identifiers (an SVG
	// path id, a tile layer feature name) into the same region-id space
	// used by point classification, so hover stats and point stats
	// always agree.
	shapeAliases map[string]string

	cache ports.CacheService
}

// DefaultRegions is the built-in centroid table for the Thai fleet.
func DefaultRegions() []domain.Region {
	return []domain.Region{
		{ID: "north", Name: "Northern", Centroid: domain.GeoPoint{Lat: 18.7904, Lon: 98.9847}},
		{ID: "northeast", Name: "Northeastern", Centroid: domain.GeoPoint{Lat: 16.4322, Lon: 102.8236}},
		{ID: "central", Name: "Central", Centroid: domain.GeoPoint{Lat: 14.0208, Lon: 100.5250}},
		{ID: "east", Name: "Eastern", Centroid: domain.GeoPoint{Lat: 13.3611, Lon: 101.0000}},
		{ID: "west", Name: "Western", Centroid: domain.GeoPoint{Lat: 13.8500, Lon: 99.1200}},
		{ID: "south", Name: "Southern", Centroid: domain.GeoPoint{Lat: 8.5000, Lon: 99.5000}},
		{ID: "bangkok", Name: "Bangkok Metropolitan", Centroid: domain.GeoPoint{Lat: 13.7563, Lon: 100.5018}},
	}
}

// NewRegionService creates a classifier over the given centroid table.
// cache may be nil; aggregates are then held in memory only.
func NewRegionService(regions []domain.Region, cache ports.CacheService) *RegionService {
	rs := &RegionService{
		regions:      make([]domain.Region, len(regions)),
		shapeAliases: make(map[string]string),
		cache:        cache,
	}
	copy(rs.regions, regions)
	for i := range rs.regions {
		if rs.regions[i].Stats.StatusCounts == nil {
			rs.regions[i].Stats.StatusCounts = make(map[string]int)
		}
		// Every region id resolves to itself.
		rs.shapeAliases[rs.regions[i].ID] = rs.regions[i].ID
	}
	return rs
}

// RegisterShapeAlias maps a renderer-specific shape identifier to a
// region id so shape-hover resolves into the classifier's id space.
func (s *RegionService) RegisterShapeAlias(shapeID, regionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapeAliases[shapeID] = regionID
}

// ResolveShape translates a shape identifier into a region id. Unknown
// shapes return ok=false.
func (s *RegionService) ResolveShape(shapeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.shapeAliases[shapeID]
	return id, ok
}

// Classify returns the id of the region whose centroid is nearest to
// geo. Identical inputs always resolve to the identical region.
func (s *RegionService) Classify(geo domain.GeoPoint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifyLocked(geo)
}

func (s *RegionService) classifyLocked(geo domain.GeoPoint) string {
	best := ""
	bestDist := -1.0
	for _, r := range s.regions {
		d := geospatial.Haversine(geo.Lat, geo.Lon, r.Centroid.Lat, r.Centroid.Lon)
		if bestDist < 0 || d < bestDist {
			best = r.ID
			bestDist = d
		}
	}
	return best
}

// Recompute rebuilds all region aggregates from the given fleet
// records. Called on every fleet reload; stats are derived, never
// hand-edited. The sum of region counts always equals len(records).
func (s *RegionService) Recompute(ctx context.Context, records []domain.PlantRecord) {
	s.mu.Lock()
	stats := make(map[string]*domain.RegionStats, len(s.regions))
	for _, r := range s.regions {
		stats[r.ID] = &domain.RegionStats{StatusCounts: make(map[string]int)}
	}
	for _, rec := range records {
		id := s.classifyLocked(domain.GeoPoint{Lat: rec.Latitude, Lon: rec.Longitude})
		st := stats[id]
		st.Count++
		st.TotalCapacity += rec.CapacityKW
		st.StatusCounts[rec.Status]++
	}
	for i := range s.regions {
		s.regions[i].Stats = *stats[s.regions[i].ID]
	}
	snapshot := s.regionsLocked()
	s.mu.Unlock()

	if s.cache != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			_ = s.cache.Set(ctx, regionStatsCacheKey, data, 300)
		}
	}
}

// Regions returns a snapshot of the region table with current stats,
// served from cache when available.
func (s *RegionService) Regions(ctx context.Context) []domain.Region {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, regionStatsCacheKey); err == nil {
			var cached []domain.Region
			if err := json.Unmarshal(data, &cached); err == nil && len(cached) > 0 {
				return cached
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regionsLocked()
}

// Region returns one region by id (or resolved shape id).
func (s *RegionService) Region(id string) (domain.Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resolved, ok := s.shapeAliases[id]; ok {
		id = resolved
	}
	for _, r := range s.regions {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Region{}, false
}

func (s *RegionService) regionsLocked() []domain.Region {
	out := make([]domain.Region, len(s.regions))
	copy(out, s.regions)
	for i := range out {
		sc := make(map[string]int, len(s.regions[i].Stats.StatusCounts))
		for k, v := range s.regions[i].Stats.StatusCounts {
			sc[k] = v
		}
		out[i].Stats.StatusCounts = sc
	}
	return out
}
