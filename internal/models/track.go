// Package models defines the domain types for geotracker.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags how a point was recorded. Tokens other than the three known
// kinds are kept verbatim so files written by newer versions survive a
// read/write cycle.
type Kind string

const (
	KindManual     Kind = "MANUAL"
	KindContinuous Kind = "CONTINUOUS"
	KindHighlight  Kind = "HIGHLIGHT"
)

// Known reports whether k is one of MANUAL, CONTINUOUS or HIGHLIGHT.
func (k Kind) Known() bool {
	switch k {
	case KindManual, KindContinuous, KindHighlight:
		return true
	}
	return false
}

// String renders unknown kinds as OTHER(<token>).
func (k Kind) String() string {
	if k.Known() {
		return string(k)
	}
	return "OTHER(" + string(k) + ")"
}

// Color is a 32-bit ARGB colour.
type Color uint32

// Hex returns the colour as #AARRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// MarshalJSON writes the colour as a signed 32-bit integer, the layout
// used by existing settings bundles.
func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(int32(c)), 10)), nil
}

// UnmarshalJSON accepts signed or unsigned 32-bit integers.
func (c *Color) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("color: %w", err)
	}
	if v < math.MinInt32 || v > math.MaxUint32 {
		return fmt.Errorf("color: %d out of 32-bit range", v)
	}
	*c = Color(uint32(v))
	return nil
}

// ParseColor accepts #AARRGGBB, #RRGGBB (opaque) or a palette name.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if c, ok := PaletteColor(s); ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 6:
		hex = "FF" + hex
	case 8:
	default:
		return 0, fmt.Errorf("color: unrecognised value %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color: unrecognised value %q", s)
	}
	return Color(v), nil
}

// NamedColor is one entry of the track palette.
type NamedColor struct {
	Name  string `json:"name"`
	Color Color  `json:"-"`
	Hex   string `json:"hex"`
}

// Palette is the set of colours offered when creating a track.
var Palette = []NamedColor{
	{Name: "red", Color: 0xFFFF0000, Hex: "#FFFF0000"},
	{Name: "green", Color: 0xFF00FF00, Hex: "#FF00FF00"},
	{Name: "blue", Color: 0xFF0000FF, Hex: "#FF0000FF"},
	{Name: "orange", Color: 0xFFFF8800, Hex: "#FFFF8800"},
	{Name: "purple", Color: 0xFFAA00FF, Hex: "#FFAA00FF"},
}

// PaletteColor looks up a palette entry by case-insensitive name.
func PaletteColor(name string) (Color, bool) {
	for _, p := range Palette {
		if strings.EqualFold(p.Name, name) {
			return p.Color, true
		}
	}
	return 0, false
}

// TrackDescriptor names a track and the file that holds its points.
type TrackDescriptor struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Color    Color  `json:"color"`
}

// PointRecord is one persisted geographic point.
type PointRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
}

// Mode selects between manual and continuous acquisition.
type Mode struct {
	Continuous bool `json:"continuous"`
}

// ValidLatLon reports whether lat/lon are finite and within WGS84 bounds.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
