package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/geotracker/internal/trackservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *trackservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	eh := NewExportHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Catalog.
	r.Get("/tracks", h.ListTracks)
	r.Post("/tracks", h.CreateTrack)
	r.Route("/tracks/{name}", func(r chi.Router) {
		r.Delete("/", h.DeleteTrack)
		r.Put("/current", h.SelectTrack)
		r.Put("/visibility", h.SetVisibility)
		r.Get("/points", h.Points)
		r.Get("/geojson", h.GeoJSON)
		r.Post("/share", h.Share)
	})

	// CSV downloads behind share links.
	r.Get("/exports/{filename}", eh.ServeFile)

	// Recording.
	r.Get("/mode", h.GetMode)
	r.Put("/mode", h.SetMode)
	r.Post("/samples", h.PushSample)
	r.Post("/points", h.SavePoint)
	r.Post("/session/pause", h.Pause)
	r.Post("/session/resume", h.Resume)

	// Map.
	r.Get("/scene", h.Scene)
	r.Get("/status", h.Status)
	r.Get("/palette", h.Palette)
	r.Get("/geojson", h.GeoJSON)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
