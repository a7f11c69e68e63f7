package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/projection"
)

type fakeRepo struct {
	saved   [][]domain.Marker
	loadSet []domain.Marker
	saveErr error
}

func (r *fakeRepo) Save(ctx context.Context, markers []domain.Marker) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, append([]domain.Marker{}, markers...))
	return nil
}

func (r *fakeRepo) Load(ctx context.Context) ([]domain.Marker, error) {
	return r.loadSet, nil
}

func (r *fakeRepo) Clear(ctx context.Context) error {
	r.saved = nil
	return nil
}

func thaiTransform(t *testing.T) *projection.Transform {
	t.Helper()
	tr, err := projection.New(
		domain.Bounds{MinLat: 5.5, MaxLat: 20.5, MinLon: 97.3, MaxLon: 105.7},
		domain.PlaneSize{W: 800, H: 1000},
	)
	if err != nil {
		t.Fatalf("projection.New: %v", err)
	}
	return tr
}

func newTestMarkers(t *testing.T, repo *fakeRepo) *MarkerService {
	t.Helper()
	s := NewMarkerService(thaiTransform(t), repo, nil, nil, false)
	s.SetActiveRenderer("vector")
	return s
}

func TestFleetIDsStableAcrossReloads(t *testing.T) {
	s := newTestMarkers(t, &fakeRepo{})
	ctx := context.Background()

	records := []domain.PlantRecord{
		{ID: "plant-a", Name: "A", Latitude: 13.7, Longitude: 100.5},
		{ID: "plant-b", Name: "B", Latitude: 18.7, Longitude: 98.9},
	}
	s.LoadPlants(ctx, records)

	byTitle := func(title string) domain.Marker {
		for _, m := range s.FleetMarkers() {
			if m.Title == title {
				return m
			}
		}
		t.Fatalf("no fleet marker titled %q", title)
		return domain.Marker{}
	}
	idA := byTitle("A").ID

	// Reload with plant-a moved and plant-b gone.
	s.LoadPlants(ctx, []domain.PlantRecord{
		{ID: "plant-a", Name: "A", Latitude: 14.0, Longitude: 101.0},
	})

	fleet := s.FleetMarkers()
	if len(fleet) != 1 {
		t.Fatalf("fleet size %d after reload, want 1", len(fleet))
	}
	if fleet[0].ID != idA {
		t.Fatalf("plant-a id changed across reload: %d -> %d", idA, fleet[0].ID)
	}
}

func TestAddCustomMarkerPersistsAndProjects(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestMarkers(t, repo)

	m, err := s.AddCustomMarker(context.Background(), domain.GeoPoint{Lat: 13.7563, Lon: 100.5018})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.Source != domain.SourceCustom {
		t.Fatalf("source %q", m.Source)
	}
	if m.Title != "Marker 1" {
		t.Fatalf("default title %q", m.Title)
	}
	if m.Projected.X == 0 && m.Projected.Y == 0 {
		t.Fatal("marker not projected")
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 1 {
		t.Fatalf("persistence writes %v", repo.saved)
	}
}

func TestDeleteLastMarkerPersistsEmptyList(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestMarkers(t, repo)
	ctx := context.Background()

	m, err := s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 13.7, Lon: 100.5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.DeleteMarker(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	last := repo.saved[len(repo.saved)-1]
	if len(last) != 0 {
		t.Fatalf("final persisted list has %d markers, want 0", len(last))
	}
}

func TestUpdateUnknownMarker(t *testing.T) {
	s := newTestMarkers(t, &fakeRepo{})
	title := "x"
	_, err := s.UpdateMarker(context.Background(), 42, domain.MarkerPatch{Title: &title})
	if !errors.Is(err, domain.ErrMarkerNotFound) {
		t.Fatalf("err %v, want ErrMarkerNotFound", err)
	}
	if err := s.DeleteMarker(context.Background(), 42); !errors.Is(err, domain.ErrMarkerNotFound) {
		t.Fatalf("delete err %v, want ErrMarkerNotFound", err)
	}
}

func TestGeoUpdateReprojects(t *testing.T) {
	s := newTestMarkers(t, &fakeRepo{})
	ctx := context.Background()

	m, _ := s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 13.7, Lon: 100.5})
	before := m.Projected

	geo := domain.GeoPoint{Lat: 18.7, Lon: 98.9}
	updated, err := s.UpdateMarker(ctx, m.ID, domain.MarkerPatch{Geo: &geo})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Projected == before {
		t.Fatal("projection unchanged after geo update")
	}
	if updated.Geo != geo {
		t.Fatalf("geo %v, want %v", updated.Geo, geo)
	}
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("valkey down")}
	s := newTestMarkers(t, repo)

	m, err := s.AddCustomMarker(context.Background(), domain.GeoPoint{Lat: 13.7, Lon: 100.5})
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err %v, want PersistenceError", err)
	}
	// The in-memory marker survives the failed write.
	if _, getErr := s.Get(m.ID); getErr != nil {
		t.Fatalf("marker lost after persistence failure: %v", getErr)
	}
}

func TestRestoreContinuesIDAllocation(t *testing.T) {
	repo := &fakeRepo{loadSet: []domain.Marker{
		{ID: 7, Geo: domain.GeoPoint{Lat: 13.7, Lon: 100.5}, Title: "old", Source: domain.SourceCustom},
	}}
	s := newTestMarkers(t, repo)
	ctx := context.Background()

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := s.Get(7)
	if err != nil {
		t.Fatalf("restored marker missing: %v", err)
	}
	if restored.Projected.X == 0 && restored.Projected.Y == 0 {
		t.Fatal("restored marker not reprojected")
	}

	m, err := s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 14, Lon: 101})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.ID != 8 {
		t.Fatalf("new id %d after restoring id 7, want 8", m.ID)
	}
}

func TestFindNearUsesRadius(t *testing.T) {
	s := newTestMarkers(t, &fakeRepo{})
	ctx := context.Background()
	s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 13.7563, Lon: 100.5018})
	s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 13.7600, Lon: 100.5100})
	s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 18.7904, Lon: 98.9847})

	near := s.FindNear(domain.GeoPoint{Lat: 13.7563, Lon: 100.5018}, 2000)
	if len(near) != 2 {
		t.Fatalf("got %d markers within 2km, want 2", len(near))
	}
}

func TestMarkersForRespectsAffinityAndActiveRenderer(t *testing.T) {
	s := newTestMarkers(t, &fakeRepo{})
	ctx := context.Background()

	s.LoadPlants(ctx, []domain.PlantRecord{
		{ID: "p1", Name: "P1", Latitude: 13.7, Longitude: 100.5},
	})
	m, _ := s.AddCustomMarker(ctx, domain.GeoPoint{Lat: 14, Lon: 101})

	// Pin the custom marker to the tile renderer.
	s.mu.Lock()
	pinned := s.markers[m.ID]
	pinned.Affinity = "tile"
	s.markers[m.ID] = pinned
	s.mu.Unlock()

	// Active renderer sees the fleet but not the tile-pinned marker.
	active := s.MarkersFor("vector")
	if len(active) != 1 || active[0].Source != domain.SourceFleet {
		t.Fatalf("vector markers %v", active)
	}

	// Inactive renderer sees its pinned custom marker but no fleet.
	inactive := s.MarkersFor("tile")
	if len(inactive) != 1 || inactive[0].ID != m.ID {
		t.Fatalf("tile markers %v", inactive)
	}
}

func TestEnforceBoundsClampsCustomMarkers(t *testing.T) {
	s := NewMarkerService(thaiTransform(t), &fakeRepo{}, nil, nil, true)
	m, err := s.AddCustomMarker(context.Background(), domain.GeoPoint{Lat: 2.0, Lon: 96.0})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.Geo.Lat != 5.5 || m.Geo.Lon != 97.3 {
		t.Fatalf("geo %v, want clamped to box corner", m.Geo)
	}
	if m.OutOfBounds {
		t.Fatal("clamped marker still flagged out of bounds")
	}
}
