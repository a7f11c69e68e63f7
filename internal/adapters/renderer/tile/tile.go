// Package tile bridges the engine's plane-based camera onto a
// slippy-tile substrate whose native camera is a geographic center plus
// an integer zoom level. The bridge is bidirectional: engine pushes set
// the native camera, native gestures feed back into the engine. Origin
// tags on every notification keep the two directions from echoing into
// a feedback loop.
package tile

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/core/projection"
)

// Name is the renderer registry key.
const Name = "tile"

// Adapter implements ports.Renderer over a tile camera.
type Adapter struct {
	mu sync.Mutex

	transform *projection.Transform
	manager   *Manager
	pool      *Pool

	mounted   bool
	container string
	screenW   int
	screenH   int

	// Native camera. baseZoom is the tile level at engine scale 1.
	center   domain.GeoPoint
	zoom     int
	baseZoom int
	minZoom  int
	maxZoom  int

	markers []nativeMarker
	visible []Coord

	onClick  ports.MarkerClickFunc
	onDrag   ports.MarkerDragFunc
	onChange ports.ViewportChangeFunc
}

type nativeMarker struct {
	id     int64
	geo    domain.GeoPoint
	worldX float64
	worldY float64
}

// New creates an unmounted tile adapter. manager and pool may be nil
// when tile prefetching is not wanted (headless tests).
func New(transform *projection.Transform, manager *Manager, pool *Pool, baseZoom int) *Adapter {
	if baseZoom <= 0 {
		baseZoom = 6
	}
	return &Adapter{
		transform: transform,
		manager:   manager,
		pool:      pool,
		baseZoom:  baseZoom,
		minZoom:   1,
		maxZoom:   18,
		screenW:   800,
		screenH:   600,
	}
}

// Name implements ports.Renderer.
func (a *Adapter) Name() string { return Name }

// Mount attaches the adapter to a display container.
func (a *Adapter) Mount(container string) error {
	if container == "" {
		return fmt.Errorf("empty container")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.container = container
	a.mounted = true
	return nil
}

// Destroy releases the native layer. Cached tiles survive so a remount
// starts warm.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mounted = false
	a.markers = nil
	a.visible = nil
}

// SetScreenSize updates the pixel size used for visible-tile coverage.
func (a *Adapter) SetScreenSize(w, h int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w > 0 && h > 0 {
		a.screenW, a.screenH = w, h
	}
}

// Render maps the engine camera onto the native one and redraws
// markers. Pushes that originate from this adapter's own gestures are
// echoes of state it already holds and are dropped; applying them would
// re-trigger the engine and loop forever.
func (a *Adapter) Render(markers []domain.Marker, change domain.ViewportChange) error {
	if change.Origin == domain.OriginTile {
		return nil
	}

	a.mu.Lock()
	if !a.mounted {
		a.mu.Unlock()
		return fmt.Errorf("tile adapter not mounted")
	}

	a.center = a.transform.ToGeo(change.Viewport.Center())
	a.zoom = a.levelForScale(change.Viewport.Scale)

	a.markers = a.markers[:0]
	for _, m := range markers {
		wx, wy := WorldPixel(m.Geo, a.zoom)
		a.markers = append(a.markers, nativeMarker{id: m.ID, geo: m.Geo, worldX: wx, worldY: wy})
	}

	a.visible = VisibleTiles(a.center, a.zoom, a.screenW, a.screenH)
	visible := a.visible
	a.mu.Unlock()

	a.prefetch(visible)
	return nil
}

// OnMarkerClick implements ports.Renderer.
func (a *Adapter) OnMarkerClick(fn ports.MarkerClickFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onClick = fn
}

// OnMarkerDrag implements ports.Renderer.
func (a *Adapter) OnMarkerDrag(fn ports.MarkerDragFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDrag = fn
}

// OnViewportChange implements ports.Renderer.
func (a *Adapter) OnViewportChange(fn ports.ViewportChangeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// MoveCamera reports a native pan/zoom gesture (the tile library moved
// its own camera). The native state is translated back into an engine
// viewport and emitted with this adapter's origin tag.
func (a *Adapter) MoveCamera(center domain.GeoPoint, zoomLevel int) {
	a.mu.Lock()
	if zoomLevel < a.minZoom {
		zoomLevel = a.minZoom
	}
	if zoomLevel > a.maxZoom {
		zoomLevel = a.maxZoom
	}
	a.center = center
	a.zoom = zoomLevel
	a.visible = VisibleTiles(center, zoomLevel, a.screenW, a.screenH)
	visible := a.visible

	scale := a.scaleForLevel(zoomLevel)
	centerPlane, _ := a.transform.ToProjected(center)
	vw := float64(a.screenW) / scale
	vh := float64(a.screenH) / scale
	change := domain.ViewportChange{
		Viewport: domain.Viewport{
			OriginX: centerPlane.X - vw/2,
			OriginY: centerPlane.Y - vh/2,
			Width:   vw,
			Height:  vh,
			Scale:   scale,
		},
		Origin: domain.OriginTile,
	}
	fn := a.onChange
	a.mu.Unlock()

	a.prefetch(visible)
	if fn != nil {
		fn(change)
	}
}

// ClickMarker forwards a native marker click. Hit-testing belongs to
// the tile library's own layer.
func (a *Adapter) ClickMarker(id int64) {
	a.mu.Lock()
	fn := a.onClick
	a.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// DropMarker commits a native marker drag at its final geographic
// position.
func (a *Adapter) DropMarker(id int64, geo domain.GeoPoint) {
	a.mu.Lock()
	fn := a.onDrag
	a.mu.Unlock()
	if fn != nil {
		fn(id, geo)
	}
}

// Camera returns the native center and zoom level.
func (a *Adapter) Camera() (domain.GeoPoint, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.center, a.zoom
}

// Visible returns the tiles covering the current camera.
func (a *Adapter) Visible() []Coord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Coord, len(a.visible))
	copy(out, a.visible)
	return out
}

// MarkerCount returns the number of markers on the native layer.
func (a *Adapter) MarkerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.markers)
}

// levelForScale maps the engine's continuous scale onto a tile level:
// each doubling of scale is one level.
func (a *Adapter) levelForScale(scale float64) int {
	level := a.baseZoom + int(math.Round(math.Log2(scale)))
	if level < a.minZoom {
		level = a.minZoom
	}
	if level > a.maxZoom {
		level = a.maxZoom
	}
	return level
}

// scaleForLevel is the inverse of levelForScale.
func (a *Adapter) scaleForLevel(level int) float64 {
	return math.Pow(2, float64(level-a.baseZoom))
}

func (a *Adapter) prefetch(tiles []Coord) {
	if a.manager == nil || a.pool == nil {
		return
	}
	for _, c := range tiles {
		if a.manager.Cached(c) {
			continue
		}
		c := c
		a.pool.Submit(Task{
			Ctx: context.Background(),
			Work: func() error {
				_, err := a.manager.GetTile(c)
				return err
			},
		})
	}
}
