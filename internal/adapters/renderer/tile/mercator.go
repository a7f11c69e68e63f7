package tile

import (
	"math"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// TileSize is the edge length of one map tile in pixels.
const TileSize = 256

// Coord addresses one Web-Mercator tile.
type Coord struct {
	X, Y, Zoom int
}

// GeoToTile converts a geographic point to the tile containing it.
func GeoToTile(g domain.GeoPoint, zoom int) Coord {
	latRad := g.Lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	x := int((g.Lon + 180.0) / 360.0 * n)
	y := int((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n)
	return Constrain(Coord{X: x, Y: y, Zoom: zoom})
}

// WorldPixel converts a geographic point to Mercator world-pixel
// coordinates at the given zoom. This is the tile substrate's native
// plane; its dimensions differ from the engine's linear plane, which is
// why renderer switches go through geographic coordinates.
func WorldPixel(g domain.GeoPoint, zoom int) (float64, float64) {
	n := math.Pow(2, float64(zoom))
	latRad := g.Lat * math.Pi / 180
	x := TileSize * n * (g.Lon + 180) / 360
	y := TileSize * n * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return x, y
}

// WorldToGeo converts Mercator world-pixel coordinates back to a
// geographic point.
func WorldToGeo(x, y float64, zoom int) domain.GeoPoint {
	n := math.Pow(2, float64(zoom))
	lon := x/(TileSize*n)*360 - 180
	latRad := math.Pi * (1 - 2*y/(TileSize*n))
	lat := 180 / math.Pi * math.Atan(math.Sinh(latRad))
	return domain.GeoPoint{Lat: lat, Lon: lon}
}

// Constrain clamps tile coordinates to the valid range for their zoom.
func Constrain(c Coord) Coord {
	maxTile := int(math.Pow(2, float64(c.Zoom))) - 1
	c.X = max(0, min(c.X, maxTile))
	c.Y = max(0, min(c.Y, maxTile))
	return c
}

// VisibleTiles lists the tiles covering a screen of the given pixel
// size centered on a geographic point, with a one-tile buffer ring.
func VisibleTiles(center domain.GeoPoint, zoom int, screenW, screenH int) []Coord {
	centerTile := GeoToTile(center, zoom)
	tilesX := screenW/TileSize + 2
	tilesY := screenH/TileSize + 2

	startX := centerTile.X - tilesX/2
	startY := centerTile.Y - tilesY/2

	out := make([]Coord, 0, tilesX*tilesY)
	for x := startX; x < startX+tilesX; x++ {
		for y := startY; y < startY+tilesY; y++ {
			out = append(out, Constrain(Coord{X: x, Y: y, Zoom: zoom}))
		}
	}
	return out
}
