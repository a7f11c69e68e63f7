package domain

// Origin identifies the component that produced a state-change
// notification. Every cross-component notification carries one so that
// recipients can drop their own echoes; without this the bidirectional
// camera sync between the viewport and the tile renderer loops forever.
type Origin string

const (
	OriginEngine   Origin = "engine"
	OriginViewport Origin = "viewport"
	OriginMarkers  Origin = "marker-store"
	OriginVector   Origin = "vector-renderer"
	OriginTile     Origin = "tile-renderer"
)

// EventType enumerates the semantic events the engine emits. Presentation
// (toast text, icons) belongs to an outside layer; the engine never
// formats user-facing strings.
type EventType string

const (
	EventMarkerAdded    EventType = "marker-added"
	EventMarkerUpdated  EventType = "marker-updated"
	EventMarkerDeleted  EventType = "marker-deleted"
	EventFleetReloaded  EventType = "fleet-reloaded"
	EventRegionSelected EventType = "region-selected"
	EventViewportReset  EventType = "viewport-reset"
)

// Event is a semantic notification emitted by the engine.
type Event struct {
	Type     EventType `json:"type"`
	Origin   Origin    `json:"origin"`
	Marker   *Marker   `json:"marker,omitempty"`
	RegionID string    `json:"region_id,omitempty"`
	Count    int       `json:"count,omitempty"`
}

// ViewportChange is pushed to renderer adapters (and received back from
// them) whenever the camera moves.
type ViewportChange struct {
	Viewport Viewport `json:"viewport"`
	Origin   Origin   `json:"origin"`
}
