package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents the geographic bounding box the projected plane covers.
// There is exactly one configured Bounds value shared by every component.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the box spans a non-empty area.
func (b Bounds) Valid() bool {
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon
}

// Contains reports whether p lies inside the box (inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Clamp returns p moved to the nearest point inside the box.
func (b Bounds) Clamp(p GeoPoint) GeoPoint {
	if p.Lat < b.MinLat {
		p.Lat = b.MinLat
	}
	if p.Lat > b.MaxLat {
		p.Lat = b.MaxLat
	}
	if p.Lon < b.MinLon {
		p.Lon = b.MinLon
	}
	if p.Lon > b.MaxLon {
		p.Lon = b.MaxLon
	}
	return p
}

// ProjectedPoint is a position on the flattened map plane, in plane units.
// The plane spans [0,W]x[0,H] with y growing downward.
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlaneSize is the extent of the projected plane in plane units.
type PlaneSize struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Viewport is the visible sub-rectangle of the projected plane plus its
// zoom scale. The (origin, width, height) triple fully determines the
// visible plane window.
type Viewport struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Scale   float64 `json:"scale"`
}

// Center returns the plane point at the middle of the viewport.
func (v Viewport) Center() ProjectedPoint {
	return ProjectedPoint{
		X: v.OriginX + v.Width/2,
		Y: v.OriginY + v.Height/2,
	}
}
