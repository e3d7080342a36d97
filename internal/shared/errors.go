package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrNoMigrations       = fmt.Errorf("no migrations to roll back")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrCancelled          = fmt.Errorf("operation cancelled")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrMalformedResponse  = fmt.Errorf("malformed response")

	// Sync job errors
	ErrConflict          = fmt.Errorf("sync already in progress")
	ErrPlaylistDisabled  = fmt.Errorf("playlist is disabled")
	ErrJobNotFound       = fmt.Errorf("sync job not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrJobFinished       = fmt.Errorf("sync job already finished")
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrDownloadTimeout   = fmt.Errorf("download timed out")
	ErrNotIndexed        = fmt.Errorf("downloaded but not found in library")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// ConflictError is returned when a playlist already has a non-terminal sync job.
type ConflictError struct {
	PlaylistID  string
	ActiveJobID string
}

func (e *ConflictError) Error() string {
	if e.ActiveJobID == "" {
		return fmt.Sprintf("%v: playlist %s", ErrConflict, e.PlaylistID)
	}
	return fmt.Sprintf("%v: playlist %s has active job %s", ErrConflict, e.PlaylistID, e.ActiveJobID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IsConflict reports whether err is (or wraps) a [ConflictError].
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
