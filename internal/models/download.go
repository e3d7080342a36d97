package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/jamknife/internal/shared"
)

// DownloadStatus is the state of an [AlbumDownloadRequest].
type DownloadStatus string

const (
	DownloadQueued    DownloadStatus = "queued"
	DownloadRunning   DownloadStatus = "running"
	DownloadSucceeded DownloadStatus = "succeeded"
	DownloadFailed    DownloadStatus = "failed"
)

var downloadRank = map[DownloadStatus]int{
	DownloadQueued:    0,
	DownloadRunning:   1,
	DownloadSucceeded: 2,
	DownloadFailed:    2,
}

func (s DownloadStatus) Terminal() bool {
	return s == DownloadSucceeded || s == DownloadFailed
}

// AlbumDownloadRequest is one album submitted to the fetch service on behalf of a track.
//
// Tracks of the same job that resolve to the same album share the request; TrackMatchID is the
// track that created it.
type AlbumDownloadRequest struct {
	ID           string         `json:"id"`
	JobID        string         `json:"jobId"`
	TrackMatchID string         `json:"trackMatchId"`
	AlbumURL     string         `json:"albumUrl"`
	AlbumTitle   string         `json:"albumTitle,omitempty"`
	Artist       string         `json:"artist,omitempty"`
	Handle       string         `json:"handle,omitempty"`
	Status       DownloadStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"maxAttempts"`
	Progress     float64        `json:"progress"`
	LastError    string         `json:"lastError,omitempty"`
	LastPolledAt *time.Time     `json:"lastPolledAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// NewAlbumDownloadRequest creates a queued request that has not been submitted yet.
func NewAlbumDownloadRequest(owner TrackMatch, album AlbumCandidate, maxAttempts int, now time.Time) AlbumDownloadRequest {
	return AlbumDownloadRequest{
		ID:           shared.GenerateID(),
		JobID:        owner.JobID,
		TrackMatchID: owner.ID,
		AlbumURL:     album.URL,
		AlbumTitle:   album.Title,
		Artist:       album.Artist,
		Status:       DownloadQueued,
		MaxAttempts:  max(maxAttempts, 1),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r AlbumDownloadRequest) Validate() error {
	if r.ID == "" || r.JobID == "" || r.TrackMatchID == "" {
		return fmt.Errorf("%w: download request requires id, job and track", shared.ErrInvalidInput)
	}
	if r.AlbumURL == "" {
		return fmt.Errorf("%w: download request requires an album url", shared.ErrInvalidInput)
	}
	if r.Attempts > r.MaxAttempts {
		return fmt.Errorf("%w: attempts %d exceed maximum %d", shared.ErrInvalidInput, r.Attempts, r.MaxAttempts)
	}
	return nil
}

// CanSubmit reports whether another submission fits within MaxAttempts.
func (r AlbumDownloadRequest) CanSubmit() bool {
	return !r.Status.Terminal() && r.Attempts < r.MaxAttempts
}

// Submitted records a new submission with the handle returned by the fetch service.
func (r AlbumDownloadRequest) Submitted(handle string, at time.Time) (AlbumDownloadRequest, error) {
	if !r.CanSubmit() {
		return r, fmt.Errorf("%w: download %s has used %d of %d attempts", shared.ErrInvalidTransition, r.ID, r.Attempts, r.MaxAttempts)
	}
	next := r
	next.Attempts++
	next.Handle = handle
	next.Progress = 0
	next.UpdatedAt = at
	return next, nil
}

// Advance returns a copy moved to status to. Status never moves backwards; a repeated
// status is allowed so polls can record progress.
func (r AlbumDownloadRequest) Advance(to DownloadStatus, at time.Time) (AlbumDownloadRequest, error) {
	from, ok := downloadRank[r.Status]
	if !ok {
		return r, fmt.Errorf("%w: unknown download status %q", shared.ErrInvalidTransition, r.Status)
	}
	rank, ok := downloadRank[to]
	if !ok {
		return r, fmt.Errorf("%w: unknown download status %q", shared.ErrInvalidTransition, to)
	}
	if r.Status.Terminal() || rank < from {
		return r, fmt.Errorf("%w: download %s %s -> %s", shared.ErrInvalidTransition, r.ID, r.Status, to)
	}

	next := r
	next.Status = to
	next.UpdatedAt = at
	if to.Terminal() {
		finished := at
		next.FinishedAt = &finished
	}
	return next, nil
}

// Polled records a poll result without changing status.
func (r AlbumDownloadRequest) Polled(progress float64, at time.Time) AlbumDownloadRequest {
	next := r
	polled := at
	next.LastPolledAt = &polled
	next.Progress = progress
	next.UpdatedAt = at
	return next
}

// Fail moves the request to failed with cause.
func (r AlbumDownloadRequest) Fail(cause error, at time.Time) (AlbumDownloadRequest, error) {
	next, err := r.Advance(DownloadFailed, at)
	if err != nil {
		return r, err
	}
	if cause != nil {
		next.LastError = cause.Error()
	}
	return next, nil
}
