// Package apperr defines the error values shared by the service layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnavailable   = errors.New("unavailable")

	ErrNoCurrentTrack = errors.New("no current track")
	ErrNoFix          = errors.New("no location fix")
	ErrInvalidName    = errors.New("invalid track name")
	ErrDuplicateName  = errors.New("duplicate track name")
)

// PersistError reports a failed write to track files or settings.
// In-memory state is left as it was before the failing operation.
type PersistError struct {
	Cause error
}

func (e *PersistError) Error() string {
	return "save failed: " + e.Cause.Error()
}

func (e *PersistError) Unwrap() error { return e.Cause }

// Persist wraps err in a PersistError; nil stays nil.
func Persist(err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistError{Cause: err}
}
