// Package projection turns the catalog, the mode and the track files into a
// renderer-neutral Scene.
package projection

import (
	"errors"
	"fmt"

	"github.com/starford/geotracker/internal/geo"
	"github.com/starford/geotracker/internal/models"
)

const (
	WidthManual     = 15
	WidthContinuous = 8
	ZoomManual      = 15
	ZoomContinuous  = 18

	highlightSuffix = " (Highlight)"
)

// View is the catalog state the scene is built from.
type View struct {
	Tracks  []models.TrackDescriptor
	Visible []bool
	Current string
}

// ReadFunc returns the records of a track file in file order.
type ReadFunc func(filename string) ([]models.PointRecord, error)

// LatLon is a geographic position.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polyline is the drawable path of one track. The current track is drawn
// thinner while continuous recording is on.
type Polyline struct {
	Track  string       `json:"track"`
	Points []LatLon     `json:"points"`
	Color  models.Color `json:"color"`
	Hex    string       `json:"hex"`
	Width  int          `json:"width"`
}

// Marker labels a recorded point with its name and kind.
type Marker struct {
	Track    string      `json:"track"`
	Position LatLon      `json:"position"`
	Label    string      `json:"label"`
	Kind     models.Kind `json:"kind"`
}

// Camera centres the map. Tile is the slippy tile under the centre at Zoom.
type Camera struct {
	Center LatLon   `json:"center"`
	Zoom   int      `json:"zoom"`
	Tile   geo.Tile `json:"tile"`
}

// Scene is everything the map renderer draws. A nil Camera means the
// renderer keeps its current camera.
type Scene struct {
	Polylines []Polyline `json:"polylines"`
	Markers   []Marker   `json:"markers"`
	Camera    *Camera    `json:"camera,omitempty"`
}

// Project builds the scene. read is called at most once per track. A track
// whose read fails is drawn as empty; the failures are returned joined and
// the scene is usable either way.
func Project(v View, mode models.Mode, read ReadFunc) (Scene, error) {
	scene := Scene{Polylines: []Polyline{}, Markers: []Marker{}}

	cache := make(map[string][]models.PointRecord, len(v.Tracks))
	var errs []error
	load := func(filename string) []models.PointRecord {
		if recs, ok := cache[filename]; ok {
			return recs
		}
		recs, err := read(filename)
		if err != nil {
			errs = append(errs, fmt.Errorf("projection: read %s: %w", filename, err))
		}
		cache[filename] = recs
		return recs
	}

	width := WidthManual
	if mode.Continuous {
		width = WidthContinuous
	}

	for i, t := range v.Tracks {
		if i >= len(v.Visible) || !v.Visible[i] {
			continue
		}
		recs := load(t.Filename)

		if len(recs) >= 2 {
			pts := make([]LatLon, len(recs))
			for j, r := range recs {
				pts[j] = LatLon{Lat: r.Lat, Lon: r.Lon}
			}
			scene.Polylines = append(scene.Polylines, Polyline{
				Track:  t.Name,
				Points: pts,
				Color:  t.Color,
				Hex:    t.Color.Hex(),
				Width:  width,
			})
		}

		for _, r := range recs {
			label := t.Name
			if mode.Continuous {
				if r.Kind != models.KindHighlight {
					continue
				}
				label += highlightSuffix
			}
			scene.Markers = append(scene.Markers, Marker{
				Track:    t.Name,
				Position: LatLon{Lat: r.Lat, Lon: r.Lon},
				Label:    label,
				Kind:     r.Kind,
			})
		}
	}

	for _, t := range v.Tracks {
		if t.Name != v.Current || v.Current == "" {
			continue
		}
		if recs := load(t.Filename); len(recs) > 0 {
			last := recs[len(recs)-1]
			zoom := ZoomManual
			if mode.Continuous {
				zoom = ZoomContinuous
			}
			scene.Camera = &Camera{
				Center: LatLon{Lat: last.Lat, Lon: last.Lon},
				Zoom:   zoom,
				Tile:   geo.TileAt(last.Lat, last.Lon, zoom),
			}
		}
		break
	}

	return scene, errors.Join(errs...)
}
