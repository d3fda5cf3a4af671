package api

import (
	"time"

	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/trackservice"
)

// CreateTrackRequest is the request body for creating a track.
type CreateTrackRequest struct {
	Name  string `json:"name" example:"Morning Run" validate:"required,max=128"`
	Color string `json:"color,omitempty" example:"#FFFF0000" validate:"omitempty,max=32"`
}

// VisibilityRequest shows or hides a track.
type VisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// ModeRequest switches the acquisition mode.
type ModeRequest struct {
	Continuous *bool `json:"continuous" validate:"required"`
}

// SampleRequest is one location fix pushed by a client.
type SampleRequest struct {
	Lat      *float64   `json:"lat" example:"52.52" validate:"required,gte=-90,lte=90"`
	Lon      *float64   `json:"lon" example:"13.405" validate:"required,gte=-180,lte=180"`
	Time     *time.Time `json:"time,omitempty"`
	Accuracy *float64   `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

func (r SampleRequest) sample() location.Sample {
	s := location.Sample{Lat: *r.Lat, Lon: *r.Lon, Accuracy: r.Accuracy}
	if r.Time != nil {
		s.Time = *r.Time
	}
	return s
}

// TrackInfo is a catalog entry (aliased from the domain layer).
type TrackInfo = trackservice.TrackInfo

// TrackListResponse wraps the catalog listing.
type TrackListResponse struct {
	Tracks  []TrackInfo `json:"tracks" validate:"required"`
	Current string      `json:"current,omitempty" example:"Standard"`
}

// PointsResponse wraps the records of one track.
type PointsResponse struct {
	Track  string               `json:"track" example:"Standard" validate:"required"`
	Points []models.PointRecord `json:"points" validate:"required"`
}

// SampleResponse reports whether a pushed sample reached the recorder.
type SampleResponse struct {
	Delivered bool   `json:"delivered"`
	Label     string `json:"label" example:"Latitude: 52.52\nLongitude: 13.405"`
}

// ModeResponse is the current acquisition mode.
type ModeResponse = models.Mode

// PaletteResponse lists the colours offered for new tracks.
type PaletteResponse struct {
	Colors []models.NamedColor `json:"colors" validate:"required"`
}
