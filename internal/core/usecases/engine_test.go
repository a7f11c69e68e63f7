package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
)

// scriptedRenderer records every engine interaction and lets tests
// drive gestures through the registered callbacks.
type scriptedRenderer struct {
	name      string
	mountErrs []error
	mounts    []string
	renders   []domain.ViewportChange
	rendered  [][]domain.Marker

	click  ports.MarkerClickFunc
	drag   ports.MarkerDragFunc
	change ports.ViewportChangeFunc
}

func (r *scriptedRenderer) Name() string { return r.name }

func (r *scriptedRenderer) Mount(container string) error {
	if len(r.mountErrs) > 0 {
		err := r.mountErrs[0]
		r.mountErrs = r.mountErrs[1:]
		if err != nil {
			return err
		}
	}
	r.mounts = append(r.mounts, container)
	return nil
}

func (r *scriptedRenderer) Render(markers []domain.Marker, change domain.ViewportChange) error {
	r.renders = append(r.renders, change)
	r.rendered = append(r.rendered, markers)
	return nil
}

func (r *scriptedRenderer) OnMarkerClick(fn ports.MarkerClickFunc)       { r.click = fn }
func (r *scriptedRenderer) OnMarkerDrag(fn ports.MarkerDragFunc)         { r.drag = fn }
func (r *scriptedRenderer) OnViewportChange(fn ports.ViewportChangeFunc) { r.change = fn }
func (r *scriptedRenderer) Destroy()                                     {}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	initial := domain.Viewport{OriginX: 0, OriginY: 0, Width: 800, Height: 1000, Scale: 1}
	return NewEngine(thaiTransform(t), initial, 0.5, 8, nil, nil, nil, DefaultRegions(), false)
}

func TestInitMapWithoutRenderer(t *testing.T) {
	e := newTestEngine(t)
	if err := e.InitMap("map-root"); !errors.Is(err, domain.ErrNoActiveRenderer) {
		t.Fatalf("err %v, want ErrNoActiveRenderer", err)
	}
}

func TestInitMapMountFailureIsRetryable(t *testing.T) {
	e := newTestEngine(t)
	r := &scriptedRenderer{name: "vector", mountErrs: []error{errors.New("container missing")}}
	e.RegisterRenderer(r)

	err := e.InitMap("bad-root")
	var merr *domain.MountError
	if !errors.As(err, &merr) {
		t.Fatalf("err %v, want MountError", err)
	}
	if len(r.renders) != 0 {
		t.Fatal("render issued despite failed mount")
	}

	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(r.mounts) != 1 || r.mounts[0] != "map-root" {
		t.Fatalf("mounts %v", r.mounts)
	}
	if len(r.renders) != 1 {
		t.Fatalf("renders after successful mount: %d", len(r.renders))
	}
}

func TestGestureOriginTagRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	r := &scriptedRenderer{name: "vector"}
	e.RegisterRenderer(r)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}
	before := len(r.renders)

	// A gesture on the renderer becomes canonical viewport state. The
	// push back out must carry the same origin tag the gesture carried,
	// so the producing renderer can drop its own echo.
	r.change(domain.ViewportChange{
		Viewport: domain.Viewport{OriginX: 120, OriginY: 80, Scale: 2},
		Origin:   domain.OriginVector,
	})

	if len(r.renders) != before+1 {
		t.Fatalf("renders %d, want %d", len(r.renders), before+1)
	}
	push := r.renders[len(r.renders)-1]
	if push.Origin != domain.OriginVector {
		t.Fatalf("push origin %q, want %q", push.Origin, domain.OriginVector)
	}
	vp := e.Viewport().Viewport()
	if vp.OriginX != 120 || vp.OriginY != 80 || vp.Scale != 2 {
		t.Fatalf("viewport %+v", vp)
	}
}

func TestSwitchRendererPreservesGeoCenter(t *testing.T) {
	e := newTestEngine(t)
	vec := &scriptedRenderer{name: "vector"}
	til := &scriptedRenderer{name: "tile"}
	e.RegisterRenderer(vec)
	e.RegisterRenderer(til)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}

	e.Viewport().BeginPan(domain.OriginEngine)
	e.Viewport().PanBy(-150, 90, domain.OriginEngine)
	e.Viewport().EndPan()
	centerBefore := e.Transform().ToGeo(e.Viewport().Viewport().Center())

	if err := e.SwitchRenderer("tile"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if e.ActiveRenderer() != "tile" {
		t.Fatalf("active %q", e.ActiveRenderer())
	}
	if len(til.mounts) != 1 {
		t.Fatalf("tile lazily mounted %d times, want 1", len(til.mounts))
	}
	if len(til.renders) == 0 {
		t.Fatal("tile never rendered after switch")
	}

	centerAfter := e.Transform().ToGeo(e.Viewport().Viewport().Center())
	if centerBefore != centerAfter {
		t.Fatalf("center moved across switch: %v -> %v", centerBefore, centerAfter)
	}

	if err := e.SwitchRenderer("webgl"); err == nil {
		t.Fatal("unknown renderer accepted")
	}
}

func TestFleetFollowsActiveRenderer(t *testing.T) {
	e := newTestEngine(t)
	vec := &scriptedRenderer{name: "vector"}
	til := &scriptedRenderer{name: "tile"}
	e.RegisterRenderer(vec)
	e.RegisterRenderer(til)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}

	e.LoadPlants(context.Background(), []domain.PlantRecord{
		{ID: "p1", Name: "P1", Latitude: 13.7, Longitude: 100.5},
	})
	last := vec.rendered[len(vec.rendered)-1]
	if len(last) != 1 {
		t.Fatalf("vector drew %d markers, want 1", len(last))
	}

	if err := e.SwitchRenderer("tile"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	last = til.rendered[len(til.rendered)-1]
	if len(last) != 1 {
		t.Fatalf("tile drew %d markers after switch, want 1", len(last))
	}
}

func TestMarkerClickEmitsRegionSelection(t *testing.T) {
	e := newTestEngine(t)
	r := &scriptedRenderer{name: "vector"}
	e.RegisterRenderer(r)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}

	var got []domain.Event
	e.On(domain.EventRegionSelected, func(ev domain.Event) { got = append(got, ev) })

	m, err := e.AddMarkerAt(context.Background(), domain.GeoPoint{Lat: 13.7563, Lon: 100.5018})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	r.click(m.ID)

	if len(got) != 1 {
		t.Fatalf("region events %d, want 1", len(got))
	}
	if got[0].RegionID != "bangkok" {
		t.Fatalf("region %q, want bangkok", got[0].RegionID)
	}
	if got[0].Marker == nil || got[0].Marker.ID != m.ID {
		t.Fatalf("event marker %+v", got[0].Marker)
	}

	// Clicks on unknown ids are dropped, not fatal.
	r.click(9999)
	if len(got) != 1 {
		t.Fatal("unknown marker click produced an event")
	}
}

func TestMarkerDragCommitsThroughStore(t *testing.T) {
	e := newTestEngine(t)
	r := &scriptedRenderer{name: "vector"}
	e.RegisterRenderer(r)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}

	m, _ := e.AddMarkerAt(context.Background(), domain.GeoPoint{Lat: 13.7, Lon: 100.5})
	drop := domain.GeoPoint{Lat: 14.2, Lon: 101.1}
	r.drag(m.ID, drop)

	after, err := e.Markers().Get(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Geo != drop {
		t.Fatalf("geo %v, want %v", after.Geo, drop)
	}
}

func TestSelectRegionByShapeAlias(t *testing.T) {
	e := newTestEngine(t)
	e.Regions().RegisterShapeAlias("svg-path-7", "north")

	var got []domain.Event
	e.On(domain.EventRegionSelected, func(ev domain.Event) { got = append(got, ev) })

	region, err := e.SelectRegion(context.Background(), "svg-path-7")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if region.ID != "north" {
		t.Fatalf("region %q", region.ID)
	}
	if len(got) != 1 || got[0].RegionID != "north" {
		t.Fatalf("events %+v", got)
	}

	if _, err := e.SelectRegion(context.Background(), "svg-path-99"); err == nil {
		t.Fatal("unknown shape accepted")
	}
}

func TestResetViewRestoresAndAnnounces(t *testing.T) {
	e := newTestEngine(t)
	r := &scriptedRenderer{name: "vector"}
	e.RegisterRenderer(r)
	if err := e.InitMap("map-root"); err != nil {
		t.Fatalf("init: %v", err)
	}

	var resets int
	e.On(domain.EventViewportReset, func(domain.Event) { resets++ })

	e.Viewport().ZoomAt(4, domain.ProjectedPoint{X: 400, Y: 500}, domain.OriginEngine)
	e.ResetView(context.Background())

	vp := e.Viewport().Viewport()
	if vp.OriginX != 0 || vp.OriginY != 0 || vp.Scale != 1 {
		t.Fatalf("viewport after reset %+v", vp)
	}
	if resets != 1 {
		t.Fatalf("reset events %d, want 1", resets)
	}
}
