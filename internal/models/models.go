package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/jamknife/internal/shared"
)

// RemoteTrack is one entry of a remote playlist.
type RemoteTrack struct {
	ExternalID string `json:"externalId"` // recording MBID
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	ReleaseID  string `json:"releaseId,omitempty"`
}

// RemotePlaylist is an ordered track list fetched from the playlist source.
type RemotePlaylist struct {
	Ref        string        `json:"ref"`
	Name       string        `json:"name"`
	Creator    string        `json:"creator,omitempty"`
	CreatedFor string        `json:"createdFor,omitempty"`
	Tracks     []RemoteTrack `json:"tracks"`
}

// LibraryTrack is a candidate returned by a library search.
type LibraryTrack struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Album       string   `json:"album,omitempty"`
	ExternalIDs []string `json:"externalIds,omitempty"`
}

// AlbumCandidate is an album found on the external catalog.
type AlbumCandidate struct {
	URL        string  `json:"url"`
	BrowseID   string  `json:"browseId,omitempty"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
}

// PlaylistKind classifies generated playlists.
type PlaylistKind string

const (
	PlaylistDaily  PlaylistKind = "daily"
	PlaylistWeekly PlaylistKind = "weekly"
	PlaylistOther  PlaylistKind = "other"
)

// SyncDaily is the sync_day value for playlists synced every day.
const SyncDaily = "daily"

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Playlist is a mirrored remote playlist and its schedule.
type Playlist struct {
	ID           string       `json:"id"`
	Sequence     int          `json:"-"`
	Ref          string       `json:"ref"`
	Name         string       `json:"name"`
	Creator      string       `json:"creator,omitempty"`
	CreatedFor   string       `json:"createdFor,omitempty"`
	Kind         PlaylistKind `json:"kind"`
	Enabled      bool         `json:"enabled"`
	SyncDay      string       `json:"syncDay,omitempty"`
	SyncTime     string       `json:"syncTime,omitempty"`
	LastSyncedAt *time.Time   `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Scheduled reports whether the playlist carries a complete schedule.
func (p Playlist) Scheduled() bool {
	return p.SyncDay != "" && p.SyncTime != ""
}

// Validate checks required fields and the schedule format.
func (p Playlist) Validate() error {
	if strings.TrimSpace(p.Ref) == "" {
		return fmt.Errorf("%w: playlist ref is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}
	switch p.Kind {
	case PlaylistDaily, PlaylistWeekly, PlaylistOther:
	default:
		return fmt.Errorf("%w: unknown playlist kind %q", shared.ErrInvalidInput, p.Kind)
	}
	if err := ValidateSchedule(p.SyncDay, p.SyncTime); err != nil {
		return err
	}
	return nil
}

// ValidateSchedule checks a sync_day/sync_time pair. Both empty means unscheduled.
func ValidateSchedule(day, at string) error {
	if day == "" && at == "" {
		return nil
	}
	if day == "" || at == "" {
		return fmt.Errorf("%w: sync day and time must be set together", shared.ErrInvalidInput)
	}
	if day != SyncDaily && !slices.Contains(weekdays, strings.ToLower(day)) {
		return fmt.Errorf("%w: sync day %q must be %q or a weekday", shared.ErrInvalidInput, day, SyncDaily)
	}
	if _, err := time.Parse("15:04", at); err != nil {
		return fmt.Errorf("%w: sync time %q must be HH:MM", shared.ErrInvalidInput, at)
	}
	return nil
}

// Weekday returns the numeric day of week (0 = Sunday) for a weekday sync_day, or -1 for daily.
func Weekday(day string) int {
	return slices.Index(weekdays, strings.ToLower(day))
}

// ClassifyPlaylist infers the playlist kind from its title.
func ClassifyPlaylist(title string) PlaylistKind {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "daily jams"):
		return PlaylistDaily
	case strings.Contains(t, "weekly jams"), strings.Contains(t, "weekly exploration"):
		return PlaylistWeekly
	default:
		return PlaylistOther
	}
}
