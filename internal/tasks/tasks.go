// package tasks implements the playlist sync engine.
//
// The core abstraction is the Orchestrator, which drives one sync job from remote playlist fetch to
// playlist materialization. Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/retry"
	"github.com/desertthunder/jamknife/internal/shared"
)

// PlaylistFetcher retrieves the ordered track list of a remote playlist.
type PlaylistFetcher interface {
	FetchRemotePlaylist(ctx context.Context, ref string) (*models.RemotePlaylist, error)
}

// LibrarySearcher looks up candidate tracks in the media library. It never fails; an empty
// result means no candidates.
type LibrarySearcher interface {
	SearchLibrary(ctx context.Context, track models.RemoteTrack) []models.LibraryTrack
}

// Library is the media library the playlist is mirrored into.
type Library interface {
	LibrarySearcher
	RefreshLibrary(ctx context.Context) error
	// MaterializePlaylist replaces the membership of the playlist called title, creating it
	// when absent, and returns its key.
	MaterializePlaylist(ctx context.Context, title string, trackIDs []string) (string, error)
}

// Catalog is the external music catalog searched for missing albums.
type Catalog interface {
	SearchAlbums(ctx context.Context, q string) ([]models.CatalogAlbum, error)
	SearchSongs(ctx context.Context, q string) ([]models.CatalogSong, error)
	SearchArtists(ctx context.Context, q string) ([]models.CatalogArtist, error)
	ArtistAlbums(ctx context.Context, artistID string) ([]models.CatalogAlbum, error)
	Album(ctx context.Context, browseID string) (*models.CatalogAlbum, error)
}

// Downloader is the fetch service that downloads albums into the library.
type Downloader interface {
	SubmitDownload(ctx context.Context, albumURL string) (string, error)
	PollDownload(ctx context.Context, handle string) (models.DownloadState, error)
}

// DownloadStore persists album download requests.
type DownloadStore interface {
	CreateDownload(d *models.AlbumDownloadRequest) error
	UpdateDownload(d *models.AlbumDownloadRequest) error
	ListDownloads(criteria map[string]any) ([]*models.AlbumDownloadRequest, error)
}

// JobStateStore is the durable record of sync jobs and their per-track outcomes.
//
// Every method is a single atomic write or read; implementations must reject a second
// non-terminal job for a playlist with a [shared.ConflictError].
type JobStateStore interface {
	DownloadStore

	GetPlaylist(id string) (*models.Playlist, error)
	MarkPlaylistSynced(id string, at time.Time) error

	CreateJob(job *models.SyncJob) error
	GetJob(id string) (*models.SyncJob, error)
	UpdateJob(job *models.SyncJob) error
	ListJobs(criteria map[string]any) ([]*models.SyncJob, error)
	ActiveJobs() ([]*models.SyncJob, error)

	CreateTrackMatch(m *models.TrackMatch) error
	UpdateTrackMatch(m *models.TrackMatch) error
	ListTrackMatches(jobID string) ([]*models.TrackMatch, error)
}

// Options tunes the sync engine.
type Options struct {
	Workers          int           // Download worker pool size
	JobTimeout       time.Duration // Wall-clock budget of one job
	RefreshSettle    time.Duration // Wait after a library refresh before re-matching
	MatchThreshold   float64       // Minimum library match similarity
	ResolveThreshold float64       // Minimum catalog candidate confidence
	PollInterval     time.Duration
	DownloadTimeout  time.Duration // Cap on waiting for one download submission
	SubmitTimeout    time.Duration
	MaxAttempts      int     // Download submissions per album
	SubmitRate       float64 // Download submissions per second across workers

	Sleep retry.SleepFunc
	Now   func() time.Time
}

// DefaultOptions mirrors the defaults of [shared.DefaultConfig].
func DefaultOptions() Options {
	return Options{
		Workers:          3,
		JobTimeout:       2 * time.Hour,
		RefreshSettle:    10 * time.Second,
		MatchThreshold:   0.85,
		ResolveThreshold: 0.8,
		PollInterval:     5 * time.Second,
		DownloadTimeout:  15 * time.Minute,
		SubmitTimeout:    2 * time.Minute,
		MaxAttempts:      2,
		SubmitRate:       1,
	}
}

// OptionsFromConfig converts the sync and fetch service settings.
func OptionsFromConfig(cfg *shared.Config) Options {
	opts := DefaultOptions()
	opts.Workers = cfg.Sync.Workers
	opts.JobTimeout = cfg.Sync.JobTimeout.Duration
	opts.RefreshSettle = cfg.Sync.RefreshSettle.Duration
	opts.MatchThreshold = cfg.Sync.MatchThreshold
	opts.ResolveThreshold = cfg.Sync.ResolveThreshold
	opts.PollInterval = cfg.Yubal.PollInterval.Duration
	opts.DownloadTimeout = cfg.Yubal.DownloadTimeout.Duration
	opts.MaxAttempts = cfg.Yubal.MaxAttempts
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Workers > 10 {
		o.Workers = 10
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = def.JobTimeout
	}
	if o.RefreshSettle < 0 {
		o.RefreshSettle = 0
	}
	if o.MatchThreshold <= 0 || o.MatchThreshold > 1 {
		o.MatchThreshold = def.MatchThreshold
	}
	if o.ResolveThreshold <= 0 || o.ResolveThreshold > 1 {
		o.ResolveThreshold = def.ResolveThreshold
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = def.DownloadTimeout
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = def.SubmitTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.Sleep == nil {
		o.Sleep = retry.Sleep
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
