// Package geo converts track points into projected coordinates, slippy map
// tiles and GeoJSON.
package geo

import (
	"math"

	"github.com/wroge/wgs84"
)

// MaxMercatorLat is the latitude limit of the Web Mercator projection.
const MaxMercatorLat = 85.05112878

// Half the width of the Web Mercator plane in metres.
const mercatorExtent = 20037508.342789244

var toMercator = wgs84.EPSG().Transform(4326, 3857)

// WebMercator projects a WGS84 position to EPSG:3857 metres. Latitudes
// beyond the projection limit are clamped.
func WebMercator(lat, lon float64) (x, y float64) {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	x, y, _ = toMercator(lon, lat, 0)
	return x, y
}

// Tile is a slippy map tile address.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// TileAt returns the tile containing the position at zoom z.
func TileAt(lat, lon float64, z int) Tile {
	x, y := WebMercator(lat, lon)
	n := math.Exp2(float64(z))
	tx := int(math.Floor((x + mercatorExtent) / (2 * mercatorExtent) * n))
	ty := int(math.Floor((mercatorExtent - y) / (2 * mercatorExtent) * n))
	last := int(n) - 1
	return Tile{X: clamp(tx, 0, last), Y: clamp(ty, 0, last), Z: z}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
