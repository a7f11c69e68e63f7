package domain

import "time"

// MarkerSource distinguishes fleet-fed markers from user-created ones.
type MarkerSource string

const (
	SourceFleet  MarkerSource = "fleet"
	SourceCustom MarkerSource = "custom"
)

// Marker is a point of interest on the map. Projected is always derived
// from Geo through the configured projection; it is never independently
// authoritative except transiently during an uncommitted drag.
type Marker struct {
	ID          int64          `json:"id"`
	Geo         GeoPoint       `json:"geo"`
	Projected   ProjectedPoint `json:"projected"`
	OutOfBounds bool           `json:"out_of_bounds,omitempty"`
	Title       string         `json:"title"`
	Note        string         `json:"note,omitempty"`
	Category    string         `json:"category,omitempty"`
	Source      MarkerSource   `json:"source"`
	// Affinity restricts a marker to one renderer; empty means both.
	Affinity  string    `json:"affinity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarkerPatch carries partial updates for a marker. Nil fields are
// left untouched.
type MarkerPatch struct {
	Geo      *GeoPoint `json:"geo,omitempty"`
	Title    *string   `json:"title,omitempty"`
	Note     *string   `json:"note,omitempty"`
	Category *string   `json:"category,omitempty"`
}

// PlantRecord is one fleet installation as supplied by the external data
// feed. Consumed read-only by the marker store.
type PlantRecord struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	CapacityKW    float64 `json:"capacity_kw"`
	CurrentOutput float64 `json:"current_output_kw"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// Region is a fixed administrative area approximated by its centroid.
// Stats are derived from the fleet marker set and recomputed on every
// fleet reload; they are never hand-edited.
type Region struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Centroid GeoPoint    `json:"centroid"`
	Stats    RegionStats `json:"stats"`
}

// RegionStats aggregates the fleet markers assigned to a region.
type RegionStats struct {
	Count         int            `json:"count"`
	TotalCapacity float64        `json:"total_capacity_kw"`
	StatusCounts  map[string]int `json:"status_counts"`
}
