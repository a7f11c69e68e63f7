package ports

import (
	"github.com/suntrack/fleetmap/internal/core/domain"
)

// MarkerClickFunc is invoked when the user clicks a marker on the active
// renderer.
type MarkerClickFunc func(markerID int64)

// MarkerDragFunc is invoked when the user finishes dragging a marker.
// The geo position is the committed drop point; a stray pointer-cancel is
// reported identically to a drop at the last known position.
type MarkerDragFunc func(markerID int64, geo domain.GeoPoint)

// ViewportChangeFunc is invoked when the renderer's own gestures move the
// camera. The change carries the renderer's origin tag so the viewport
// controller can tell a user gesture from its own echoed push.
type ViewportChangeFunc func(change domain.ViewportChange)

// Renderer bridges abstract marker/viewport state to a concrete drawing
// substrate. Exactly one renderer is active at a time; switching must
// preserve the viewport's geographic center and drop no marker state.
type Renderer interface {
	// Name identifies the renderer ("vector" or "tile").
	Name() string

	// Mount attaches the renderer to a display container. A failed mount
	// returns *domain.MountError and leaves engine state untouched.
	Mount(container string) error

	// Render replaces the renderer's visuals with the given markers and
	// camera. Pushes whose change originates from this renderer are
	// ignored to break the camera sync loop.
	Render(markers []domain.Marker, change domain.ViewportChange) error

	// OnMarkerClick registers the click callback.
	OnMarkerClick(fn MarkerClickFunc)

	// OnMarkerDrag registers the drag-commit callback.
	OnMarkerDrag(fn MarkerDragFunc)

	// OnViewportChange registers the gesture callback.
	OnViewportChange(fn ViewportChangeFunc)

	// Destroy releases the renderer's resources. The renderer can be
	// mounted again afterwards.
	Destroy()
}
