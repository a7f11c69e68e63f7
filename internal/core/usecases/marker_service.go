package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/core/projection"
	"github.com/suntrack/fleetmap/internal/pkg/geospatial"
	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// MarkerService is the single source of truth for the marker set, fleet
// and custom alike. Renderer adapters are read-mostly consumers: every
// geo mutation routes back through UpdateMarker, never through a
// renderer-local cache. All mutations are synchronous and the
// persistence write is the last side effect of each one.
type MarkerService struct {
	mu sync.Mutex

	transform     *projection.Transform
	repo          ports.MarkerRepository
	publisher     ports.EventPublisher
	regions       *RegionService
	enforceBounds bool

	markers  map[int64]domain.Marker
	fleetIDs map[string]int64 // stable source id -> marker id, survives reloads
	nextID   int64

	activeRenderer string
	onMutation     func()
}

// NewMarkerService creates the canonical marker store. repo and
// publisher may be nil; persistence and event emission are then skipped.
func NewMarkerService(
	transform *projection.Transform,
	repo ports.MarkerRepository,
	publisher ports.EventPublisher,
	regions *RegionService,
	enforceBounds bool,
) *MarkerService {
	return &MarkerService{
		transform:     transform,
		repo:          repo,
		publisher:     publisher,
		regions:       regions,
		enforceBounds: enforceBounds,
		markers:       make(map[int64]domain.Marker),
		fleetIDs:      make(map[string]int64),
		nextID:        1,
	}
}

// OnMutation registers the listener notified after every committed
// marker mutation, before the persistence write.
func (s *MarkerService) OnMutation(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutation = fn
}

// SetActiveRenderer records which renderer currently draws the fleet.
func (s *MarkerService) SetActiveRenderer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRenderer = name
}

// Restore loads previously persisted custom markers into the store.
// They are not rendered until a renderer is mounted; id allocation
// continues from the maximum persisted id so reloads never collide.
func (s *MarkerService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	restored, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore custom markers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range restored {
		m.Source = domain.SourceCustom
		m.Projected, m.OutOfBounds = s.transform.ToProjected(m.Geo)
		s.markers[m.ID] = m
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	slog.Info("custom markers restored", "count", len(restored), "next_id", s.nextID)
	return nil
}

// LoadPlants replaces all fleet markers with the given records, keyed by
// stable source id. Custom markers are untouched. Region aggregates are
// recomputed from the new fleet set.
func (s *MarkerService) LoadPlants(ctx context.Context, records []domain.PlantRecord) {
	s.mu.Lock()
	for id, m := range s.markers {
		if m.Source == domain.SourceFleet {
			delete(s.markers, id)
		}
	}
	for _, r := range records {
		id, ok := s.fleetIDs[r.ID]
		if !ok {
			id = s.nextID
			s.nextID++
			s.fleetIDs[r.ID] = id
		}
		geo := domain.GeoPoint{Lat: r.Latitude, Lon: r.Longitude}
		proj, oob := s.transform.ToProjected(geo)
		s.markers[id] = domain.Marker{
			ID:          id,
			Geo:         geo,
			Projected:   proj,
			OutOfBounds: oob,
			Title:       r.Name,
			Note:        r.Status,
			Category:    "plant",
			Source:      domain.SourceFleet,
			CreatedAt:   time.Now(),
		}
	}
	fn := s.onMutation
	s.mu.Unlock()

	metrics.MarkersLoaded.WithLabelValues(string(domain.SourceFleet)).Set(float64(len(records)))
	if s.regions != nil {
		s.regions.Recompute(ctx, records)
	}
	if fn != nil {
		fn()
	}
	s.publish(ctx, domain.Event{
		Type:   domain.EventFleetReloaded,
		Origin: domain.OriginMarkers,
		Count:  len(records),
	})
}

// AddCustomMarker places a user marker at geo and persists it.
func (s *MarkerService) AddCustomMarker(ctx context.Context, geo domain.GeoPoint) (domain.Marker, error) {
	s.mu.Lock()
	if s.enforceBounds {
		geo = s.transform.Bounds().Clamp(geo)
	}
	proj, oob := s.transform.ToProjected(geo)
	m := domain.Marker{
		ID:          s.nextID,
		Geo:         geo,
		Projected:   proj,
		OutOfBounds: oob,
		Title:       fmt.Sprintf("Marker %d", s.nextID),
		Source:      domain.SourceCustom,
		CreatedAt:   time.Now(),
	}
	s.nextID++
	s.markers[m.ID] = m
	custom := s.customMarkersLocked()
	fn := s.onMutation
	s.mu.Unlock()

	metrics.MarkerMutations.WithLabelValues("add").Inc()
	if fn != nil {
		fn()
	}
	s.publish(ctx, domain.Event{Type: domain.EventMarkerAdded, Origin: domain.OriginMarkers, Marker: &m})
	if err := s.persist(ctx, custom); err != nil {
		return m, err
	}
	return m, nil
}

// UpdateMarker applies a partial edit. A geo change reprojects the
// marker. Unknown ids return domain.ErrMarkerNotFound with no side
// effects.
func (s *MarkerService) UpdateMarker(ctx context.Context, id int64, patch domain.MarkerPatch) (domain.Marker, error) {
	s.mu.Lock()
	m, ok := s.markers[id]
	if !ok {
		s.mu.Unlock()
		return domain.Marker{}, fmt.Errorf("update marker %d: %w", id, domain.ErrMarkerNotFound)
	}
	if patch.Geo != nil {
		geo := *patch.Geo
		if s.enforceBounds {
			geo = s.transform.Bounds().Clamp(geo)
		}
		m.Geo = geo
		m.Projected, m.OutOfBounds = s.transform.ToProjected(geo)
	}
	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.Note != nil {
		m.Note = *patch.Note
	}
	if patch.Category != nil {
		m.Category = *patch.Category
	}
	s.markers[id] = m
	isCustom := m.Source == domain.SourceCustom
	custom := s.customMarkersLocked()
	fn := s.onMutation
	s.mu.Unlock()

	metrics.MarkerMutations.WithLabelValues("update").Inc()
	if fn != nil {
		fn()
	}
	s.publish(ctx, domain.Event{Type: domain.EventMarkerUpdated, Origin: domain.OriginMarkers, Marker: &m})
	if isCustom {
		if err := s.persist(ctx, custom); err != nil {
			return m, err
		}
	}
	return m, nil
}

// CommitDrag is the drop (or stray cancel) of a marker drag. The
// transiently renderer-owned position becomes authoritative by routing
// through UpdateMarker; a marker never stays in a visual-only state.
func (s *MarkerService) CommitDrag(ctx context.Context, id int64, geo domain.GeoPoint) (domain.Marker, error) {
	return s.UpdateMarker(ctx, id, domain.MarkerPatch{Geo: &geo})
}

// DeleteMarker removes a marker from the store. Custom deletions are
// persisted immediately.
func (s *MarkerService) DeleteMarker(ctx context.Context, id int64) error {
	s.mu.Lock()
	m, ok := s.markers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete marker %d: %w", id, domain.ErrMarkerNotFound)
	}
	delete(s.markers, id)
	isCustom := m.Source == domain.SourceCustom
	custom := s.customMarkersLocked()
	fn := s.onMutation
	s.mu.Unlock()

	metrics.MarkerMutations.WithLabelValues("delete").Inc()
	if fn != nil {
		fn()
	}
	s.publish(ctx, domain.Event{Type: domain.EventMarkerDeleted, Origin: domain.OriginMarkers, Marker: &m})
	if isCustom {
		return s.persist(ctx, custom)
	}
	return nil
}

// Get returns a marker by id.
func (s *MarkerService) Get(id int64) (domain.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok {
		return domain.Marker{}, fmt.Errorf("get marker %d: %w", id, domain.ErrMarkerNotFound)
	}
	return m, nil
}

// All returns every marker in the store.
func (s *MarkerService) All() []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Marker, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, m)
	}
	return out
}

// FindNear returns markers within radiusMeters of geo, for hover and
// selection. A cheap box prefilter runs before the haversine scan.
func (s *MarkerService) FindNear(geo domain.GeoPoint, radiusMeters float64) []domain.Marker {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(geo.Lat, geo.Lon, radiusMeters)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Marker
	for _, m := range s.markers {
		if m.Geo.Lat < minLat || m.Geo.Lat > maxLat || m.Geo.Lon < minLon || m.Geo.Lon > maxLon {
			continue
		}
		if geospatial.Haversine(geo.Lat, geo.Lon, m.Geo.Lat, m.Geo.Lon) <= radiusMeters {
			out = append(out, m)
		}
	}
	return out
}

// MarkersFor returns the markers a renderer should draw: custom markers
// always (subject to affinity), fleet markers only on the active
// renderer so the fleet is never drawn twice.
func (s *MarkerService) MarkersFor(renderer string) []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Marker
	for _, m := range s.markers {
		if m.Affinity != "" && m.Affinity != renderer {
			continue
		}
		if m.Source == domain.SourceFleet && renderer != s.activeRenderer {
			continue
		}
		out = append(out, m)
	}
	return out
}

// CustomMarkers returns the user-created subset.
func (s *MarkerService) CustomMarkers() []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customMarkersLocked()
}

// FleetMarkers returns the fleet subset.
func (s *MarkerService) FleetMarkers() []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fleetMarkersLocked()
}

func (s *MarkerService) customMarkersLocked() []domain.Marker {
	var out []domain.Marker
	for _, m := range s.markers {
		if m.Source == domain.SourceCustom {
			out = append(out, m)
		}
	}
	return out
}

func (s *MarkerService) fleetMarkersLocked() []domain.Marker {
	var out []domain.Marker
	for _, m := range s.markers {
		if m.Source == domain.SourceFleet {
			out = append(out, m)
		}
	}
	return out
}

// persist overwrites the durable custom-marker list. Failures never roll
// back the in-memory mutation: the UI stays consistent even when the
// durable copy lags.
func (s *MarkerService) persist(ctx context.Context, custom []domain.Marker) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, custom); err != nil {
		metrics.PersistenceFailures.Inc()
		perr := &domain.PersistenceError{Op: "save", Err: err}
		slog.Warn("custom marker persistence failed", "error", perr)
		return perr
	}
	return nil
}

func (s *MarkerService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		slog.Warn("event publish failed", "type", string(event.Type), "error", err)
	}
}
