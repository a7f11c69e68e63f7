// Package vector renders markers as an SVG overlay. Markers are drawn
// in plane units inside a group whose outer transform encodes the
// viewport, so camera moves touch one attribute instead of every node.
package vector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/core/projection"
)

// Name is the renderer registry key.
const Name = "vector"

// Adapter implements ports.Renderer on an SVG scene graph.
type Adapter struct {
	mu sync.Mutex

	transform *projection.Transform
	container string
	mounted   bool

	viewport domain.Viewport
	nodes    []node

	onClick  ports.MarkerClickFunc
	onDrag   ports.MarkerDragFunc
	onChange ports.ViewportChangeFunc
}

type node struct {
	id          int64
	x, y        float64
	title       string
	category    string
	source      domain.MarkerSource
	outOfBounds bool
}

// New creates an unmounted vector adapter sharing the canonical
// projection.
func New(transform *projection.Transform) *Adapter {
	return &Adapter{transform: transform}
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

// Destroy drops the scene. The adapter can be mounted again.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mounted = false
	a.nodes = nil
}

// Render replaces the scene with the given markers and camera. Pushes
// that originate from this adapter's own gestures are dropped; the
// native camera already moved when the gesture was reported.
func (a *Adapter) Render(markers []domain.Marker, change domain.ViewportChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.mounted {
		return fmt.Errorf("vector adapter not mounted")
	}
	if change.Origin == domain.OriginVector {
		return nil
	}

	a.viewport = change.Viewport
	a.nodes = a.nodes[:0]
	for _, m := range markers {
		a.nodes = append(a.nodes, node{
			id:          m.ID,
			x:           m.Projected.X,
			y:           m.Projected.Y,
			title:       m.Title,
			category:    m.Category,
			source:      m.Source,
			outOfBounds: m.OutOfBounds,
		})
	}
	sort.Slice(a.nodes, func(i, j int) bool { return a.nodes[i].id < a.nodes[j].id })
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

// HitTest returns the id of the topmost marker within tolerance plane
// units of the given plane point. Hit-testing is native per node.
func (a *Adapter) HitTest(p domain.ProjectedPoint, tolerance float64) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.nodes) - 1; i >= 0; i-- {
		n := a.nodes[i]
		dx := n.x - p.X
		dy := n.y - p.Y
		if dx*dx+dy*dy <= tolerance*tolerance {
			return n.id, true
		}
	}
	return 0, false
}

// Click reports a pointer click at a plane point, resolving it to a
// marker through hit-testing.
func (a *Adapter) Click(p domain.ProjectedPoint, tolerance float64) {
	id, ok := a.HitTest(p, tolerance)
	if !ok {
		return
	}
	a.mu.Lock()
	fn := a.onClick
	a.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// DropMarker commits a marker drag at a plane point. The geo position
// is derived through the shared projection and routed back to the
// store; the adapter keeps no authoritative position of its own.
func (a *Adapter) DropMarker(id int64, p domain.ProjectedPoint) {
	geo := a.transform.ToGeo(p)
	a.mu.Lock()
	fn := a.onDrag
	a.mu.Unlock()
	if fn != nil {
		fn(id, geo)
	}
}

// Gesture reports a pan/zoom performed directly on the overlay (wheel,
// drag on the background). The native camera updates first, then the
// change goes out tagged with this adapter's origin so the echoed push
// is dropped in Render.
func (a *Adapter) Gesture(viewport domain.Viewport) {
	a.mu.Lock()
	a.viewport = viewport
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn(domain.ViewportChange{Viewport: viewport, Origin: domain.OriginVector})
	}
}

// Viewport returns the camera last pushed to the adapter.
func (a *Adapter) Viewport() domain.Viewport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewport
}

// SVG serializes the scene for the dashboard frontend. The outer group
// transform maps plane units to screen pixels for the current viewport.
func (a *Adapter) SVG() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	w := a.viewport.Width * a.viewport.Scale
	h := a.viewport.Height * a.viewport.Scale
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f">`, w, h)
	fmt.Fprintf(&b, `<g transform="scale(%g) translate(%g %g)">`,
		a.viewport.Scale, -a.viewport.OriginX, -a.viewport.OriginY)
	for _, n := range a.nodes {
		class := string(n.source)
		if n.outOfBounds {
			class += " out-of-bounds"
		}
		fmt.Fprintf(&b, `<circle id="marker-%d" class="%s" cx="%g" cy="%g" r="6"><title>%s</title></circle>`,
			n.id, class, n.x, n.y, escape(n.title))
	}
	b.WriteString(`</g></svg>`)
	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
