// Package projection converts between geographic coordinates and the
// flat map plane. It is pure: both renderer adapters use the same
// Transform so a marker's geographic truth is renderer-independent.
package projection

import (
	"fmt"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// Transform is a linear fit of a geographic bounding box onto a W x H
// plane. The latitude axis is inverted because plane y grows downward.
type Transform struct {
	bounds domain.Bounds
	plane  domain.PlaneSize
}

// New creates a Transform for the given box and plane size.
func New(bounds domain.Bounds, plane domain.PlaneSize) (*Transform, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("invalid bounds: min must be strictly below max (%+v)", bounds)
	}
	if plane.W <= 0 || plane.H <= 0 {
		return nil, fmt.Errorf("invalid plane size %gx%g", plane.W, plane.H)
	}
	return &Transform{bounds: bounds, plane: plane}, nil
}

// Bounds returns the configured bounding box.
func (t *Transform) Bounds() domain.Bounds { return t.bounds }

// Plane returns the configured plane size.
func (t *Transform) Plane() domain.PlaneSize { return t.plane }

// ToProjected maps a geographic point onto the plane. Points outside the
// bounding box still project (possibly beyond [0,W]x[0,H]) and are
// flagged rather than rejected: fleet installations may sit marginally
// outside nominal borders.
func (t *Transform) ToProjected(g domain.GeoPoint) (domain.ProjectedPoint, bool) {
	p := domain.ProjectedPoint{
		X: (g.Lon - t.bounds.MinLon) / (t.bounds.MaxLon - t.bounds.MinLon) * t.plane.W,
		Y: (t.bounds.MaxLat - g.Lat) / (t.bounds.MaxLat - t.bounds.MinLat) * t.plane.H,
	}
	return p, !t.bounds.Contains(g)
}

// ToGeo is the exact algebraic inverse of ToProjected.
func (t *Transform) ToGeo(p domain.ProjectedPoint) domain.GeoPoint {
	return domain.GeoPoint{
		Lat: t.bounds.MaxLat - p.Y/t.plane.H*(t.bounds.MaxLat-t.bounds.MinLat),
		Lon: t.bounds.MinLon + p.X/t.plane.W*(t.bounds.MaxLon-t.bounds.MinLon),
	}
}
