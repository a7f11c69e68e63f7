package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// MapStateHandler returns the current camera, interaction state, and
// projection geometry in one payload so clients can boot from a single
// request.
func MapStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp := deps.Engine.Viewport()
		tr := deps.Engine.Transform()
		return c.JSON(fiber.Map{
			"viewport":        vp.Viewport(),
			"state":           vp.State().String(),
			"active_renderer": deps.Engine.ActiveRenderer(),
			"bounds":          tr.Bounds(),
			"plane":           tr.Plane(),
		})
	}
}

type panRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// PanHandler applies a one-shot pan in screen pixels. Interactive
// drag sequences come in over the WebSocket; REST pans are atomic.
func PanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req panRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		vp := deps.Engine.Viewport()
		vp.BeginPan(domain.OriginEngine)
		vp.PanBy(req.DX, req.DY, domain.OriginEngine)
		vp.EndPan()
		return c.JSON(vp.Viewport())
	}
}

type zoomRequest struct {
	Scale float64  `json:"scale"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
}

// ZoomHandler zooms to the given scale, anchored at a plane point. If
// no anchor is supplied the current viewport center stays fixed.
func ZoomHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req zoomRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Scale <= 0 {
			return errBadRequest(c, "scale must be positive")
		}
		vp := deps.Engine.Viewport()
		cursor := vp.Viewport().Center()
		if req.X != nil && req.Y != nil {
			cursor = domain.ProjectedPoint{X: *req.X, Y: *req.Y}
		}
		vp.ZoomAt(req.Scale, cursor, domain.OriginEngine)
		return c.JSON(vp.Viewport())
	}
}

type animateRequest struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Scale      float64 `json:"scale"`
	DurationMS int     `json:"duration_ms"`
}

// AnimateHandler starts a smooth flight to a geographic point. The
// animation is pumped by the server tick loop; any new input cancels it.
func AnimateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req animateRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Scale <= 0 {
			return errBadRequest(c, "scale must be positive")
		}
		duration := time.Duration(req.DurationMS) * time.Millisecond
		if duration <= 0 {
			duration = 600 * time.Millisecond
		}

		center, _ := deps.Engine.Transform().ToProjected(domain.GeoPoint{Lat: req.Lat, Lon: req.Lon})
		cur := deps.Engine.Viewport().Viewport()
		w := cur.Width * cur.Scale / req.Scale
		h := cur.Height * cur.Scale / req.Scale
		target := domain.Viewport{
			OriginX: center.X - w/2,
			OriginY: center.Y - h/2,
			Width:   w,
			Height:  h,
			Scale:   req.Scale,
		}
		deps.Engine.Viewport().AnimateTo(target, duration, time.Now())
		return c.JSON(fiber.Map{"state": deps.Engine.Viewport().State().String()})
	}
}

// ResetViewHandler restores the configured initial camera.
func ResetViewHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Engine.ResetView(c.Context())
		return c.JSON(deps.Engine.Viewport().Viewport())
	}
}

type resizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ResizeHandler adjusts the viewport to a new screen size, keeping the
// center fixed.
func ResizeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req resizeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Width <= 0 || req.Height <= 0 {
			return errBadRequest(c, "width and height must be positive")
		}
		deps.Engine.Viewport().Resize(req.Width, req.Height, domain.OriginEngine)
		return c.JSON(deps.Engine.Viewport().Viewport())
	}
}

// ProjectHandler maps a geographic coordinate onto the drawing plane.
// Out-of-bounds points are projected anyway and flagged.
func ProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 1000)
		lon := c.QueryFloat("lon", 1000)
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return errBadRequest(c, "lat and lon are required")
		}
		p, oob := deps.Engine.Transform().ToProjected(domain.GeoPoint{Lat: lat, Lon: lon})
		return c.JSON(fiber.Map{"point": p, "out_of_bounds": oob})
	}
}

// UnprojectHandler maps a plane coordinate back to geographic space.
func UnprojectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("x") == "" || c.Query("y") == "" {
			return errBadRequest(c, "x and y are required")
		}
		x := c.QueryFloat("x", 0)
		y := c.QueryFloat("y", 0)
		geo := deps.Engine.Transform().ToGeo(domain.ProjectedPoint{X: x, Y: y})
		return c.JSON(geo)
	}
}

type switchRendererRequest struct {
	Name string `json:"name"`
}

// SwitchRendererHandler swaps the active renderer, preserving the
// geographic center across the swap.
func SwitchRendererHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req switchRendererRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Name == "" {
			return errBadRequest(c, "renderer name is required")
		}
		if err := deps.Engine.SwitchRenderer(req.Name); err != nil {
			return errConflict(c, err.Error())
		}
		return c.JSON(fiber.Map{"active_renderer": deps.Engine.ActiveRenderer()})
	}
}

// ActiveRendererHandler reports which renderer currently draws.
func ActiveRendererHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"active_renderer": deps.Engine.ActiveRenderer()})
	}
}

// OverlayHandler returns the vector renderer's SVG scene, mainly for
// server-side rendering and debugging.
func OverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Vector == nil {
			return errInternal(c, "vector renderer not available")
		}
		c.Set("Content-Type", "image/svg+xml")
		c.Set("Cache-Control", "no-cache")
		return c.SendString(deps.Vector.SVG())
	}
}

// ListMarkersHandler lists markers, optionally filtered by source or by
// the renderer they would appear on.
func ListMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var markers []domain.Marker
		switch {
		case c.Query("renderer") != "":
			markers = deps.Engine.Markers().MarkersFor(c.Query("renderer"))
		case c.Query("source") == string(domain.SourceCustom):
			markers = deps.Engine.Markers().CustomMarkers()
		case c.Query("source") == string(domain.SourceFleet):
			markers = deps.Engine.Markers().FleetMarkers()
		default:
			markers = deps.Engine.Markers().All()
		}

		offset, limit := ParsePagination(c)

		total := len(markers)
		if offset >= total {
			markers = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			markers = markers[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: markers, Pagination: pg})
	}
}

type createMarkerRequest struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Title    *string `json:"title"`
	Note     *string `json:"note"`
	Category *string `json:"category"`
}

// CreateMarkerHandler drops a custom marker at a geographic point.
func CreateMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createMarkerRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
			return errBadRequest(c, "lat and lon out of range")
		}

		m, err := deps.Engine.AddMarkerAt(c.Context(), domain.GeoPoint{Lat: req.Lat, Lon: req.Lon})
		if err != nil {
			return errInternal(c, err.Error())
		}
		if req.Title != nil || req.Note != nil || req.Category != nil {
			m, err = deps.Engine.Markers().UpdateMarker(c.Context(), m.ID, domain.MarkerPatch{
				Title:    req.Title,
				Note:     req.Note,
				Category: req.Category,
			})
			if err != nil {
				return errInternal(c, err.Error())
			}
		}
		return c.Status(201).JSON(m)
	}
}

// GetMarkerHandler returns one marker by id.
func GetMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "marker id must be a positive integer")
		}
		m, err := deps.Engine.Markers().Get(int64(id))
		if err != nil {
			return errNotFound(c, "marker not found")
		}
		return c.JSON(m)
	}
}

// UpdateMarkerHandler applies a partial update to a marker.
func UpdateMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "marker id must be a positive integer")
		}
		var patch domain.MarkerPatch
		if err := c.BodyParser(&patch); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if patch.Geo != nil {
			if patch.Geo.Lat < -90 || patch.Geo.Lat > 90 || patch.Geo.Lon < -180 || patch.Geo.Lon > 180 {
				return errBadRequest(c, "geo out of range")
			}
		}

		m, err := deps.Engine.Markers().UpdateMarker(c.Context(), int64(id), patch)
		if err != nil {
			if errors.Is(err, domain.ErrMarkerNotFound) {
				return errNotFound(c, "marker not found")
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(m)
	}
}

// DeleteMarkerHandler removes a marker.
func DeleteMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "marker id must be a positive integer")
		}
		if err := deps.Engine.Markers().DeleteMarker(c.Context(), int64(id)); err != nil {
			if errors.Is(err, domain.ErrMarkerNotFound) {
				return errNotFound(c, "marker not found")
			}
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// NearMarkersHandler returns markers within a radius of a point.
func NearMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 1000)
		lon := c.QueryFloat("lon", 1000)
		radius := c.QueryFloat("radius", 5000)
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return errBadRequest(c, "lat and lon are required")
		}
		if radius <= 0 || radius > 500000 {
			return errBadRequest(c, "radius must be between 1 and 500000 meters")
		}
		markers := deps.Engine.Markers().FindNear(domain.GeoPoint{Lat: lat, Lon: lon}, radius)
		return c.JSON(markers)
	}
}

// ListRegionsHandler returns every region with its aggregates.
func ListRegionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(deps.Engine.Regions().Regions(c.Context()))
	}
}

// GetRegionHandler returns one region by id or shape alias.
func GetRegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "region id is required")
		}
		region, ok := deps.Engine.Regions().Region(id)
		if !ok {
			return errNotFound(c, "region not found")
		}
		return c.JSON(region)
	}
}

type selectRegionRequest struct {
	ShapeID string `json:"shape_id"`
}

// SelectRegionHandler records a region selection and broadcasts it.
func SelectRegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req selectRegionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.ShapeID == "" {
			return errBadRequest(c, "shape_id is required")
		}
		region, err := deps.Engine.SelectRegion(c.Context(), req.ShapeID)
		if err != nil {
			return errNotFound(c, err.Error())
		}
		return c.JSON(region)
	}
}

// ClassifyHandler assigns a geographic point to its nearest region.
func ClassifyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 1000)
		lon := c.QueryFloat("lon", 1000)
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return errBadRequest(c, "lat and lon are required")
		}
		regionID := deps.Engine.Regions().Classify(domain.GeoPoint{Lat: lat, Lon: lon})
		return c.JSON(fiber.Map{"region_id": regionID})
	}
}

// FleetStatusHandler returns fleet totals straight from the registry.
func FleetStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats struct {
			Plants      int     `json:"plants"`
			Located     int     `json:"located"`
			CapacityKW  float64 `json:"capacity_kw"`
			LastUpdated string  `json:"last_updated,omitempty"`
		}
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM plants),
				(SELECT count(*) FROM plants WHERE location IS NOT NULL),
				COALESCE((SELECT sum(capacity_kw) FROM plants), 0),
				COALESCE((SELECT max(updated_at)::text FROM plants), '')
		`)
		if err := row.Scan(&stats.Plants, &stats.Located, &stats.CapacityKW, &stats.LastUpdated); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// GetPlantHandler returns one installation from the registry.
func GetPlantHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Plants == nil {
			return errInternal(c, "plant source not available")
		}
		plant, err := deps.Plants.FetchPlant(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotFound(c, "plant not found")
			}
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(plant)
	}
}

// ReloadFleetHandler refetches the fleet and swaps it into the map.
func ReloadFleetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Plants == nil {
			return errInternal(c, "plant source not available")
		}
		records, err := deps.Plants.FetchPlants(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		deps.Engine.LoadPlants(c.Context(), records)
		return c.JSON(fiber.Map{"loaded": len(records)})
	}
}
