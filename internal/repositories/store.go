package repositories

import (
	"database/sql"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
)

// Store groups the repositories behind the job state store used by the sync orchestrator.
//
// Each method is a single statement, so every state transition is one atomic write.
type Store struct {
	Playlists *PlaylistRepository
	Jobs      *SyncJobRepository
	Tracks    *TrackMatchRepository
	Downloads *DownloadRepository
}

// NewStore creates a Store over db. Migrations must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Playlists: NewPlaylistRepository(db),
		Jobs:      NewSyncJobRepository(db),
		Tracks:    NewTrackMatchRepository(db),
		Downloads: NewDownloadRepository(db),
	}
}

func (s *Store) GetPlaylist(id string) (*models.Playlist, error) { return s.Playlists.Get(id) }

func (s *Store) MarkPlaylistSynced(id string, at time.Time) error {
	return s.Playlists.MarkSynced(id, at)
}

func (s *Store) CreateJob(job *models.SyncJob) error { return s.Jobs.Create(job) }
func (s *Store) GetJob(id string) (*models.SyncJob, error) { return s.Jobs.Get(id) }
func (s *Store) UpdateJob(job *models.SyncJob) error { return s.Jobs.Update(job) }
func (s *Store) CreateTrackMatch(m *models.TrackMatch) error { return s.Tracks.Create(m) }
func (s *Store) UpdateTrackMatch(m *models.TrackMatch) error { return s.Tracks.Update(m) }

func (s *Store) ListJobs(criteria map[string]any) ([]*models.SyncJob, error) {
	return s.Jobs.List(criteria)
}

// ActiveJobs returns every non-terminal job, newest first.
func (s *Store) ActiveJobs() ([]*models.SyncJob, error) {
	return s.Jobs.List(map[string]any{"active": true})
}

func (s *Store) ListTrackMatches(jobID string) ([]*models.TrackMatch, error) {
	return s.Tracks.ListByJob(jobID)
}

func (s *Store) CreateDownload(d *models.AlbumDownloadRequest) error { return s.Downloads.Create(d) }
func (s *Store) UpdateDownload(d *models.AlbumDownloadRequest) error { return s.Downloads.Update(d) }

func (s *Store) ListDownloads(criteria map[string]any) ([]*models.AlbumDownloadRequest, error) {
	return s.Downloads.List(criteria)
}
