// Package trackfile manages the lifecycle of per-track CSV files.
package trackfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/geotracker/internal/codec"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/storage"
)

// Pattern matches every track file in the data directory.
const Pattern = "track_*.csv"

// Store creates, appends to, reads and removes track files. Writes to the
// same file are serialized; different files proceed independently.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store on top of fs.
func New(fs storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lock(filename string) func() {
	s.mu.Lock()
	l, ok := s.locks[filename]
	if !ok {
		l = &sync.Mutex{}
		s.locks[filename] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// EnsureExists creates filename with the CSV header if it is missing.
// An existing file is never touched.
func (s *Store) EnsureExists(filename string) error {
	defer s.lock(filename)()
	return s.ensureLocked(filename)
}

func (s *Store) ensureLocked(filename string) error {
	err := s.fs.CreateWithContent(filename, []byte(codec.Header))
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("trackfile: ensure %s: %w", filename, err)
	}
	return nil
}

// Append writes one encoded record to filename, creating the file with a
// header first when needed. A torn final line left by an earlier crash is
// terminated before the new row so the row stays readable.
func (s *Store) Append(filename string, rec models.PointRecord) error {
	defer s.lock(filename)()
	if err := s.ensureLocked(filename); err != nil {
		return err
	}
	tail, err := s.fs.Tail(filename, 1)
	if err != nil {
		return fmt.Errorf("trackfile: append %s: %w", filename, err)
	}
	var line []byte
	if len(tail) == 1 && tail[0] != '\n' {
		line = append(line, '\n')
	}
	line = codec.AppendEncoded(line, rec)
	if err := s.fs.AppendBytes(filename, line); err != nil {
		return fmt.Errorf("trackfile: append %s: %w", filename, err)
	}
	return nil
}

// ReadAll returns every decodable record of filename in file order.
// A missing file yields no records.
func (s *Store) ReadAll(filename string) ([]models.PointRecord, error) {
	rc, err := s.fs.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("trackfile: read %s: %w", filename, err)
	}
	defer rc.Close()
	recs, err := codec.ReadAll(rc, func(skip *codec.SkipError) {
		s.logger.Debug("trackfile: line skipped",
			slog.String("file", filename),
			slog.Int("line", skip.Line),
			slog.String("reason", skip.Reason))
	})
	if err != nil {
		return recs, fmt.Errorf("trackfile: read %s: %w", filename, err)
	}
	return recs, nil
}

// Raw returns the file bytes for export.
func (s *Store) Raw(filename string) ([]byte, error) {
	return s.fs.Read(filename)
}

// Exists reports whether filename is present.
func (s *Store) Exists(filename string) (bool, error) {
	return s.fs.Exists(filename)
}

// Remove deletes filename. A missing file is not an error.
func (s *Store) Remove(filename string) error {
	defer s.lock(filename)()
	if err := s.fs.Delete(filename); err != nil {
		return fmt.Errorf("trackfile: remove %s: %w", filename, err)
	}
	return nil
}

// List returns the track files present in the data directory.
func (s *Store) List() ([]storage.FileInfo, error) {
	return s.fs.List(Pattern)
}
