package geo

import (
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/starford/geotracker/internal/models"
)

// LineString builds a lon/lat line through the records in order. Fewer
// than two records give an empty line. Records that all share one position
// are not a valid line and yield an error.
func LineString(recs []models.PointRecord) (geom.LineString, error) {
	if len(recs) < 2 {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(recs)*2)
	for _, r := range recs {
		coords = append(coords, r.Lon, r.Lat)
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("geo: linestring: %w", err)
	}
	return ls, nil
}

// Point builds a lon/lat point.
func Point(lat, lon float64) (geom.Point, error) {
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lon, Y: lat}})
	if err != nil {
		return geom.Point{}, fmt.Errorf("geo: point: %w", err)
	}
	return pt, nil
}

// Track is one track's descriptor and points for export.
type Track struct {
	Descriptor models.TrackDescriptor
	Records    []models.PointRecord
}

// FeatureCollection renders tracks as GeoJSON: one LineString feature per
// track with at least two distinct positions, followed by one Point feature
// per record. A stationary track is exported as points only.
func FeatureCollection(tracks ...Track) geom.GeoJSONFeatureCollection {
	fc := geom.GeoJSONFeatureCollection{}
	for _, t := range tracks {
		if ls, err := LineString(t.Records); err == nil && !ls.IsEmpty() {
			fc = append(fc, geom.GeoJSONFeature{
				Geometry: ls.AsGeometry(),
				Properties: map[string]any{
					"name":   t.Descriptor.Name,
					"file":   t.Descriptor.Filename,
					"color":  t.Descriptor.Color.Hex(),
					"points": len(t.Records),
				},
			})
		}
		for i, r := range t.Records {
			props := map[string]any{
				"track": t.Descriptor.Name,
				"kind":  string(r.Kind),
				"index": i,
			}
			if !r.Timestamp.IsZero() {
				props["timestamp"] = r.Timestamp.Format(time.RFC3339)
			}
			pt, err := Point(r.Lat, r.Lon)
			if err != nil {
				continue
			}
			fc = append(fc, geom.GeoJSONFeature{
				Geometry:   pt.AsGeometry(),
				Properties: props,
			})
		}
	}
	return fc
}
