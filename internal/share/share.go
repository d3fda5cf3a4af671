// Package share exposes track files to other applications by URI.
package share

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/geotracker/internal/apperr"
	"github.com/starford/geotracker/internal/codec"
)

// Shared describes a file handed to a share target.
type Shared struct {
	Filename string `json:"filename"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// Sink makes a track file available outside the process.
type Sink interface {
	Share(ctx context.Context, filename string) (Shared, error)
}

// Exister reports whether a track file is present.
type Exister interface {
	Exists(filename string) (bool, error)
}

// Links shares files as download links served by the HTTP API.
type Links struct {
	base  string
	files Exister
}

var _ Sink = (*Links)(nil)

// NewLinks builds links under base, e.g. "http://localhost:8080".
func NewLinks(base string, files Exister) *Links {
	return &Links{base: strings.TrimRight(base, "/"), files: files}
}

// Share returns the export URL for filename, or apperr.ErrNotFound when
// the file does not exist.
func (l *Links) Share(_ context.Context, filename string) (Shared, error) {
	ok, err := l.files.Exists(filename)
	if err != nil {
		return Shared{}, fmt.Errorf("share: %s: %w", filename, err)
	}
	if !ok {
		return Shared{}, fmt.Errorf("share: %s: %w", filename, apperr.ErrNotFound)
	}
	return Shared{
		Filename: filename,
		URI:      l.base + "/api/exports/" + url.PathEscape(filename),
		MIMEType: codec.MIMEType,
	}, nil
}
