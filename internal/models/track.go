package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/jamknife/internal/shared"
)

// TrackStatus is the resolution state of a [TrackMatch].
type TrackStatus string

const (
	TrackUnresolved  TrackStatus = "unresolved"
	TrackFound       TrackStatus = "found"
	TrackDownloading TrackStatus = "downloading"
	TrackDownloaded  TrackStatus = "downloaded"
	TrackNotFound    TrackStatus = "not_found"
	TrackErrored     TrackStatus = "errored"
)

var trackTransitions = map[TrackStatus][]TrackStatus{
	TrackUnresolved:  {TrackFound, TrackDownloading, TrackNotFound},
	TrackDownloading: {TrackDownloaded, TrackErrored},
	TrackFound:       {},
	TrackDownloaded:  {},
	TrackNotFound:    {},
	TrackErrored:     {},
}

// Terminal reports whether the track outcome is final for its job.
func (s TrackStatus) Terminal() bool {
	return s != TrackUnresolved && s != TrackDownloading
}

// InPlaylist reports whether tracks in this state belong in the destination playlist.
func (s TrackStatus) InPlaylist() bool {
	return s == TrackFound || s == TrackDownloaded
}

// TrackMatch is the outcome of resolving one playlist track within a job.
type TrackMatch struct {
	ID         string      `json:"id"`
	JobID      string      `json:"jobId"`
	Position   int         `json:"position"`
	ExternalID string      `json:"externalId,omitempty"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album,omitempty"`
	ReleaseID  string      `json:"releaseId,omitempty"`
	Status     TrackStatus `json:"status"`
	LibraryID  string      `json:"libraryId,omitempty"`
	AlbumURL   string      `json:"albumUrl,omitempty"`
	DownloadID string      `json:"downloadId,omitempty"`
	RetryCount int         `json:"retryCount"`
	LastError  string      `json:"lastError,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// NewTrackMatch creates an unresolved match for the track at position.
func NewTrackMatch(jobID string, position int, t RemoteTrack, now time.Time) TrackMatch {
	return TrackMatch{
		ID:         shared.GenerateID(),
		JobID:      jobID,
		Position:   position,
		ExternalID: t.ExternalID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		ReleaseID:  t.ReleaseID,
		Status:     TrackUnresolved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Track returns the remote track this match was built from.
func (m TrackMatch) Track() RemoteTrack {
	return RemoteTrack{ExternalID: m.ExternalID, Title: m.Title, Artist: m.Artist, Album: m.Album, ReleaseID: m.ReleaseID}
}

func (m TrackMatch) Validate() error {
	if m.ID == "" || m.JobID == "" {
		return fmt.Errorf("%w: track match requires id and job id", shared.ErrInvalidInput)
	}
	if _, ok := trackTransitions[m.Status]; !ok {
		return fmt.Errorf("%w: unknown track status %q", shared.ErrInvalidInput, m.Status)
	}
	return nil
}

// Transition returns a copy of the match moved to status to. Moves are forward only.
func (m TrackMatch) Transition(to TrackStatus, at time.Time) (TrackMatch, error) {
	if !slices.Contains(trackTransitions[m.Status], to) {
		return m, fmt.Errorf("%w: track %d %s -> %s", shared.ErrInvalidTransition, m.Position, m.Status, to)
	}
	next := m
	next.Status = to
	next.UpdatedAt = at
	return next, nil
}

// Found marks the track as present in the library.
func (m TrackMatch) Found(libraryID string, at time.Time) (TrackMatch, error) {
	next, err := m.Transition(TrackFound, at)
	if err != nil {
		return m, err
	}
	next.LibraryID = libraryID
	return next, nil
}

// NotFound marks the track as unavailable on the catalog.
func (m TrackMatch) NotFound(reason string, at time.Time) (TrackMatch, error) {
	next, err := m.Transition(TrackNotFound, at)
	if err != nil {
		return m, err
	}
	next.LastError = reason
	return next, nil
}

// Downloading links the track to the album download that should bring it into the library.
// Tracks move here once their album is resolved, before the request is submitted, so every
// download failure leaves through downloading.
func (m TrackMatch) Downloading(downloadID, albumURL string, at time.Time) (TrackMatch, error) {
	next, err := m.Transition(TrackDownloading, at)
	if err != nil {
		return m, err
	}
	next.DownloadID = downloadID
	next.AlbumURL = albumURL
	return next, nil
}

// Downloaded marks a downloading track as indexed by the library.
func (m TrackMatch) Downloaded(libraryID string, at time.Time) (TrackMatch, error) {
	next, err := m.Transition(TrackDownloaded, at)
	if err != nil {
		return m, err
	}
	next.LibraryID = libraryID
	return next, nil
}

// Errored marks the track as failed with cause.
func (m TrackMatch) Errored(cause error, retries int, at time.Time) (TrackMatch, error) {
	next, err := m.Transition(TrackErrored, at)
	if err != nil {
		return m, err
	}
	next.RetryCount = retries
	if cause != nil {
		next.LastError = cause.Error()
	}
	return next, nil
}

// CountTracks derives job counters from track outcomes.
func CountTracks(matches []TrackMatch) Counters {
	var c Counters
	for _, m := range matches {
		switch m.Status {
		case TrackFound:
			c.Found++
		case TrackDownloaded:
			c.Downloaded++
		case TrackNotFound:
			c.NotFound++
		case TrackErrored:
			c.Errored++
		}
	}
	return c
}
