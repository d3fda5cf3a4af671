package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/trackservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *trackservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *trackservice.Service) *Handler {
	return &Handler{svc: svc}
}

// trackName extracts the {name} URL parameter, decoding escaped characters.
func trackName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return strings.TrimSpace(decoded)
}

// ListTracks handles GET /api/tracks.
//
//	@Summary		List tracks with visibility and current flag
//	@Tags			tracks
//	@Produce		json
//	@Success		200	{object}	TrackListResponse
//	@Security		BearerAuth
//	@Router			/tracks [get]
func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.svc.ListTracks(r.Context())
	if err != nil {
		writeError(w, "list tracks", err)
		return
	}
	resp := TrackListResponse{Tracks: tracks}
	for _, t := range tracks {
		if t.Current {
			resp.Current = t.Name
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTrack handles POST /api/tracks.
//
//	@Summary		Create a track and make it current
//	@Tags			tracks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTrackRequest	true	"Track to create"
//	@Success		201		{object}	TrackInfo
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tracks [post]
func (h *Handler) CreateTrack(w http.ResponseWriter, r *http.Request) {
	var req CreateTrackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, err := h.svc.CreateTrack(r.Context(), req.Name, req.Color)
	if err != nil {
		writeError(w, "create track", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// DeleteTrack handles DELETE /api/tracks/{name}.
//
//	@Summary		Delete a track and its file
//	@Tags			tracks
//	@Param			name	path	string	true	"Track name"
//	@Success		204		"Track deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tracks/{name} [delete]
func (h *Handler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTrack(r.Context(), trackName(r)); err != nil {
		writeError(w, "delete track", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectTrack handles PUT /api/tracks/{name}/current.
func (h *Handler) SelectTrack(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SelectTrack(r.Context(), trackName(r))
	if err != nil {
		writeError(w, "select track", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SetVisibility handles PUT /api/tracks/{name}/visibility.
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, err := h.svc.SetVisibility(r.Context(), trackName(r), *req.Visible)
	if err != nil {
		writeError(w, "set visibility", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Points handles GET /api/tracks/{name}/points.
//
//	@Summary		Read every point of a track
//	@Tags			tracks
//	@Produce		json
//	@Param			name	path		string	true	"Track name"
//	@Success		200		{object}	PointsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tracks/{name}/points [get]
func (h *Handler) Points(w http.ResponseWriter, r *http.Request) {
	name := trackName(r)
	pts, err := h.svc.Points(r.Context(), name)
	if err != nil {
		writeError(w, "read points", err)
		return
	}
	writeJSON(w, http.StatusOK, PointsResponse{Track: name, Points: pts})
}

// GeoJSON handles GET /api/tracks/{name}/geojson and GET /api/geojson.
// Without a name every visible track is exported.
func (h *Handler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := h.svc.GeoJSON(r.Context(), trackName(r))
	if err != nil {
		writeError(w, "geojson export", err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, "geojson export", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Share handles POST /api/tracks/{name}/share.
//
//	@Summary		Get a shareable CSV link for a track
//	@Tags			tracks
//	@Produce		json
//	@Param			name	path		string	true	"Track name"
//	@Success		200		{object}	share.Shared
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tracks/{name}/share [post]
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	shared, err := h.svc.Share(r.Context(), trackName(r))
	if err != nil {
		writeError(w, "share track", err)
		return
	}
	writeJSON(w, http.StatusOK, shared)
}

// GetMode handles GET /api/mode.
func (h *Handler) GetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Mode(r.Context()))
}

// SetMode handles PUT /api/mode.
//
//	@Summary		Switch between manual and continuous recording
//	@Tags			recording
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ModeRequest	true	"Mode"
//	@Success		200		{object}	ModeResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mode [put]
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	m, err := h.svc.SetMode(r.Context(), models.Mode{Continuous: *req.Continuous})
	if err != nil {
		writeError(w, "set mode", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PushSample handles POST /api/samples.
//
//	@Summary		Deliver a location fix to the recorder
//	@Tags			recording
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SampleRequest	true	"Location fix"
//	@Success		202		{object}	SampleResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/samples [post]
func (h *Handler) PushSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	delivered, err := h.svc.PushSample(r.Context(), req.sample())
	if err != nil {
		writeError(w, "push sample", err)
		return
	}
	writeJSON(w, http.StatusAccepted, SampleResponse{
		Delivered: delivered,
		Label:     h.svc.Status(r.Context()).Label,
	})
}

// SavePoint handles POST /api/points.
//
//	@Summary		Save the latest fix to the current track
//	@Tags			recording
//	@Produce		json
//	@Success		201	{object}	trackservice.PointResult
//	@Failure		409	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/points [post]
func (h *Handler) SavePoint(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SavePoint(r.Context())
	if err != nil {
		writeError(w, "save point", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Scene handles GET /api/scene.
func (h *Handler) Scene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Scene(r.Context()))
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Pause handles POST /api/session/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Pause(r.Context())
	if err != nil {
		writeError(w, "pause session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Resume handles POST /api/session/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Resume(r.Context())
	if err != nil {
		writeError(w, "resume session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Palette handles GET /api/palette.
func (h *Handler) Palette(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PaletteResponse{Colors: h.svc.Palette(r.Context())})
}
