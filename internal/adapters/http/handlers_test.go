package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/suntrack/fleetmap/internal/adapters/renderer/tile"
	"github.com/suntrack/fleetmap/internal/adapters/renderer/vector"
	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/projection"
	"github.com/suntrack/fleetmap/internal/core/usecases"
)

type memRepo struct {
	saved []domain.Marker
}

func (r *memRepo) Save(ctx context.Context, markers []domain.Marker) error {
	r.saved = append([]domain.Marker{}, markers...)
	return nil
}

func (r *memRepo) Load(ctx context.Context) ([]domain.Marker, error) {
	return append([]domain.Marker{}, r.saved...), nil
}

func (r *memRepo) Clear(ctx context.Context) error {
	r.saved = nil
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *Dependencies) {
	t.Helper()

	tr, err := projection.New(
		domain.Bounds{MinLat: 5.5, MaxLat: 20.5, MinLon: 97.3, MaxLon: 105.7},
		domain.PlaneSize{W: 800, H: 1000},
	)
	if err != nil {
		t.Fatalf("projection.New: %v", err)
	}

	initial := domain.Viewport{OriginX: 0, OriginY: 0, Width: 800, Height: 1000, Scale: 1}
	engine := usecases.NewEngine(tr, initial, 0.5, 8, &memRepo{}, nil, nil,
		usecases.DefaultRegions(), false)

	vec := vector.New(tr)
	engine.RegisterRenderer(vec)
	engine.RegisterRenderer(tile.New(tr, nil, nil, 6))
	if err := engine.InitMap("map"); err != nil {
		t.Fatalf("InitMap: %v", err)
	}

	deps := &Dependencies{Engine: engine, Vector: vec}
	app := fiber.New()
	SetupRoutes(app, deps)
	return app, deps
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestMapState(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doJSON(t, app, "GET", "/v1/map/state", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var state struct {
		Viewport       domain.Viewport `json:"viewport"`
		State          string          `json:"state"`
		ActiveRenderer string          `json:"active_renderer"`
	}
	decode(t, resp, &state)
	if state.ActiveRenderer != "vector" {
		t.Fatalf("active renderer %q, want vector", state.ActiveRenderer)
	}
	if state.State != "idle" {
		t.Fatalf("state %q, want idle", state.State)
	}
	if state.Viewport.Width != 800 {
		t.Fatalf("viewport width %v", state.Viewport.Width)
	}
}

func TestPanShiftsOrigin(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doJSON(t, app, "POST", "/v1/map/pan", map[string]float64{"dx": 40, "dy": -20})
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var vp domain.Viewport
	decode(t, resp, &vp)
	if vp.OriginX != -40 || vp.OriginY != 20 {
		t.Fatalf("origin (%v,%v), want (-40,20)", vp.OriginX, vp.OriginY)
	}
}

func TestZoomKeepsAnchorFixed(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doJSON(t, app, "POST", "/v1/map/zoom", map[string]float64{
		"scale": 2, "x": 100, "y": 200,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var vp domain.Viewport
	decode(t, resp, &vp)
	// cursor - (cursor-origin)*old/new with old origin (0,0), scale 1->2
	if math.Abs(vp.OriginX-50) > 1e-9 || math.Abs(vp.OriginY-100) > 1e-9 {
		t.Fatalf("origin (%v,%v), want (50,100)", vp.OriginX, vp.OriginY)
	}
	if vp.Scale != 2 {
		t.Fatalf("scale %v, want 2", vp.Scale)
	}
}

func TestMarkerLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, "POST", "/v1/markers", map[string]interface{}{
		"lat": 13.7563, "lon": 100.5018, "title": "Depot",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	var m domain.Marker
	decode(t, resp, &m)
	if m.ID == 0 || m.Title != "Depot" || m.Source != domain.SourceCustom {
		t.Fatalf("unexpected marker %+v", m)
	}

	resp = doJSON(t, app, "GET", fmt.Sprintf("/v1/markers/%d", m.ID), nil)
	if resp.StatusCode != 200 {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, app, "PATCH", fmt.Sprintf("/v1/markers/%d", m.ID), map[string]interface{}{
		"note": "inspection due",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("patch status %d", resp.StatusCode)
	}
	var patched domain.Marker
	decode(t, resp, &patched)
	if patched.Note != "inspection due" || patched.Title != "Depot" {
		t.Fatalf("unexpected patched marker %+v", patched)
	}

	resp = doJSON(t, app, "DELETE", fmt.Sprintf("/v1/markers/%d", m.ID), nil)
	if resp.StatusCode != 204 {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, app, "GET", fmt.Sprintf("/v1/markers/%d", m.ID), nil)
	if resp.StatusCode != 404 {
		t.Fatalf("get after delete status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMarkersNear(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, "POST", "/v1/markers", map[string]float64{"lat": 13.7563, "lon": 100.5018}).Body.Close()
	doJSON(t, app, "POST", "/v1/markers", map[string]float64{"lat": 18.79, "lon": 98.98}).Body.Close()

	resp := doJSON(t, app, "GET", "/v1/markers/near?lat=13.75&lon=100.5&radius=10000", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var near []domain.Marker
	decode(t, resp, &near)
	if len(near) != 1 {
		t.Fatalf("got %d markers near Bangkok, want 1", len(near))
	}
}

func TestClassifyDeterministic(t *testing.T) {
	app, _ := newTestApp(t)
	var first string
	for i := 0; i < 3; i++ {
		resp := doJSON(t, app, "GET", "/v1/regions/classify?lat=13.7563&lon=100.5018", nil)
		if resp.StatusCode != 200 {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var out struct {
			RegionID string `json:"region_id"`
		}
		decode(t, resp, &out)
		if out.RegionID != "bangkok" {
			t.Fatalf("region %q, want bangkok", out.RegionID)
		}
		if i == 0 {
			first = out.RegionID
		} else if out.RegionID != first {
			t.Fatal("classification not deterministic")
		}
	}
}

func TestSelectRegionByShapeAlias(t *testing.T) {
	app, deps := newTestApp(t)
	deps.Engine.Regions().RegisterShapeAlias("svg-path-7", "north")

	resp := doJSON(t, app, "POST", "/v1/regions/select", map[string]string{"shape_id": "svg-path-7"})
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var region domain.Region
	decode(t, resp, &region)
	if region.ID != "north" {
		t.Fatalf("region %q, want north", region.ID)
	}

	resp = doJSON(t, app, "POST", "/v1/regions/select", map[string]string{"shape_id": "nope"})
	if resp.StatusCode != 404 {
		t.Fatalf("unknown shape status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSwitchRenderer(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, "POST", "/v1/map/renderer", map[string]string{"name": "tile"})
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		ActiveRenderer string `json:"active_renderer"`
	}
	decode(t, resp, &out)
	if out.ActiveRenderer != "tile" {
		t.Fatalf("active %q, want tile", out.ActiveRenderer)
	}

	resp = doJSON(t, app, "POST", "/v1/map/renderer", map[string]string{"name": "webgl"})
	if resp.StatusCode != 409 {
		t.Fatalf("unknown renderer status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProjectUnprojectRoundTrip(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, "GET", "/v1/map/project?lat=13.7563&lon=100.5018", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("project status %d", resp.StatusCode)
	}
	var proj struct {
		Point       domain.ProjectedPoint `json:"point"`
		OutOfBounds bool                  `json:"out_of_bounds"`
	}
	decode(t, resp, &proj)
	if proj.OutOfBounds {
		t.Fatal("Bangkok flagged out of bounds")
	}

	resp = doJSON(t, app, "GET",
		fmt.Sprintf("/v1/map/unproject?x=%f&y=%f", proj.Point.X, proj.Point.Y), nil)
	if resp.StatusCode != 200 {
		t.Fatalf("unproject status %d", resp.StatusCode)
	}
	var geo domain.GeoPoint
	decode(t, resp, &geo)
	if math.Abs(geo.Lat-13.7563) > 1e-6 || math.Abs(geo.Lon-100.5018) > 1e-6 {
		t.Fatalf("round trip gave %v", geo)
	}
}

func TestOverlaySVG(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, "POST", "/v1/markers", map[string]float64{"lat": 13.7563, "lon": 100.5018}).Body.Close()

	resp := doJSON(t, app, "GET", "/v1/map/overlay.svg", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(body, []byte("<svg")) || !bytes.Contains(body, []byte("<circle")) {
		t.Fatalf("svg missing expected elements: %s", body)
	}
}

func TestGetPlantWithoutRegistry(t *testing.T) {
	app, _ := newTestApp(t)

	// The test app wires no plant source; the route must answer with a
	// structured error rather than panic on the nil dependency.
	resp := doJSON(t, app, "GET", "/v1/fleet/plant-a", nil)
	if resp.StatusCode != 500 {
		t.Fatalf("status %d, want 500", resp.StatusCode)
	}
	var apiErr APIError
	decode(t, resp, &apiErr)
	if apiErr.Code != "internal_error" {
		t.Fatalf("code %q", apiErr.Code)
	}

	// The static fleet routes stay reachable alongside the id param.
	resp = doJSON(t, app, "GET", "/v1/fleet/status", nil)
	if resp.StatusCode != 500 {
		t.Fatalf("fleet status without db: status %d, want 500", resp.StatusCode)
	}
}

func TestResetRestoresInitialViewport(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, "POST", "/v1/map/pan", map[string]float64{"dx": 100, "dy": 100}).Body.Close()

	resp := doJSON(t, app, "POST", "/v1/map/reset", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var vp domain.Viewport
	decode(t, resp, &vp)
	if vp.OriginX != 0 || vp.OriginY != 0 || vp.Scale != 1 {
		t.Fatalf("viewport after reset %+v", vp)
	}
}
