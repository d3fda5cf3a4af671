// Package storage defines the private track directory abstraction.
package storage

import (
	"io"
	"time"
)

// FileInfo is a lightweight listing entry.
type FileInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for file operations inside the data directory.
// All names are relative to the directory root.
type Provider interface {
	// Exists reports whether name is present.
	Exists(name string) (bool, error)
	// CreateWithContent creates name with content; it fails with
	// os.ErrExist when the file is already there.
	CreateWithContent(name string, content []byte) error
	// AppendBytes appends data to name, creating it when missing, and
	// returns once the bytes are handed to the OS.
	AppendBytes(name string, data []byte) error
	// Open opens name for reading.
	Open(name string) (io.ReadCloser, error)
	// Tail returns up to n bytes from the end of name.
	Tail(name string, n int64) ([]byte, error)
	// Read returns the raw bytes of name.
	Read(name string) ([]byte, error)
	// Write atomically replaces name with content.
	Write(name string, content []byte) error
	// Delete removes name; a missing file is not an error.
	Delete(name string) error
	// List returns the files whose names match the glob pattern.
	List(pattern string) ([]FileInfo, error)
	// Root returns the absolute directory path.
	Root() string
}
