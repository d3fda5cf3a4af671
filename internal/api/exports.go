package api

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/geotracker/internal/checksum"
	"github.com/starford/geotracker/internal/codec"
	"github.com/starford/geotracker/internal/trackservice"
)

// ExportHandler serves track files as CSV downloads.
type ExportHandler struct {
	svc *trackservice.Service
}

// NewExportHandler creates an export handler.
func NewExportHandler(svc *trackservice.Service) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// ServeFile handles GET /api/exports/{filename}.
func (h *ExportHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	data, err := h.svc.Export(r.Context(), filename)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	etag := checksum.ETag(data)
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), data) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", codec.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
