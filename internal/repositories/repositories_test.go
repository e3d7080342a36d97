package repositories

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func createPlaylist(t *testing.T, repo *PlaylistRepository, ref string) *models.Playlist {
	t.Helper()
	p := &models.Playlist{Ref: ref, Name: "Weekly Jams for alice", Enabled: true}
	require.NoError(t, repo.Create(p))
	return p
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("Create classifies and assigns ids", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		p := createPlaylist(t, repo, "mbid-1")

		assert.NotEmpty(t, p.ID)
		assert.Equal(t, 1, p.Sequence)
		assert.Equal(t, models.PlaylistWeekly, p.Kind)

		got, err := repo.GetByRef("mbid-1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.True(t, got.Enabled)
	})

	t.Run("Create rejects duplicate refs", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		createPlaylist(t, repo, "mbid-1")

		err := repo.Create(&models.Playlist{Ref: "mbid-1", Name: "again"})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("Update schedule and list scheduled", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		p := createPlaylist(t, repo, "mbid-1")
		createPlaylist(t, repo, "mbid-2")

		p.SyncDay, p.SyncTime = "monday", "06:30"
		require.NoError(t, repo.Update(p))

		scheduled, err := repo.List(map[string]any{"scheduled": true})
		require.NoError(t, err)
		require.Len(t, scheduled, 1)
		assert.Equal(t, "06:30", scheduled[0].SyncTime)

		all, err := repo.List(nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Update rejects bad schedule", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		p := createPlaylist(t, repo, "mbid-1")

		p.SyncDay, p.SyncTime = "caturday", "06:30"
		assert.ErrorIs(t, repo.Update(p), shared.ErrInvalidInput)
	})

	t.Run("MarkSynced", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		p := createPlaylist(t, repo, "mbid-1")

		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, repo.MarkSynced(p.ID, at))

		got, err := repo.Get(p.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastSyncedAt)
		assert.True(t, got.LastSyncedAt.Equal(at))
	})

	t.Run("Delete is soft", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewPlaylistRepository(db)
		p := createPlaylist(t, repo, "mbid-1")

		require.NoError(t, repo.Delete(p.ID))
		_, err := repo.Get(p.ID)
		assert.ErrorIs(t, err, shared.ErrPlaylistNotFound)
		assert.ErrorIs(t, repo.Delete(p.ID), shared.ErrPlaylistNotFound)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM playlists").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestSyncJobRepository(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("second active job conflicts", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		first := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&first))

		second := models.NewSyncJob(p.ID, now)
		err := repo.Create(&second)

		var conflict *shared.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, first.ID, conflict.ActiveJobID)
		assert.True(t, shared.IsConflict(err))
	})

	t.Run("terminal job frees the playlist", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		first := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&first))

		failed, err := first.Fail(models.CategoryFetch, errors.New("boom"), models.Counters{}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Update(&failed))

		second := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&second))

		_, err = repo.ActiveForPlaylist(p.ID)
		require.NoError(t, err)
	})

	t.Run("concurrent creates admit exactly one", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job := models.NewSyncJob(p.ID, now)
				err := repo.Create(&job)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case shared.IsConflict(err):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("update round trips the full record", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		job := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&job))

		job, err := job.Transition(models.JobFetching, now.Add(time.Second))
		require.NoError(t, err)
		job.TracksTotal = 12
		require.NoError(t, repo.Update(&job))

		got, err := repo.Get(job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFetching, got.Status)
		assert.Equal(t, 12, got.TracksTotal)
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(now.Add(time.Second)))
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("terminal job is never written again", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		job := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&job))
		fetching, err := job.Transition(models.JobFetching, now)
		require.NoError(t, err)
		require.NoError(t, repo.Update(&fetching))

		failed, err := fetching.Fail(models.CategoryCancelled, shared.ErrCancelled, models.Counters{}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Update(&failed))

		stale, err := fetching.Transition(models.JobMatching, now.Add(time.Second))
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Update(&stale), shared.ErrJobFinished)

		got, err := repo.Get(job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, got.Status)
		assert.Equal(t, models.CategoryCancelled, got.ErrorCategory)
	})

	t.Run("missing job", func(t *testing.T) {
		repo := NewSyncJobRepository(setupTestDB(t))
		_, err := repo.Get("nope")
		assert.ErrorIs(t, err, shared.ErrJobNotFound)

		job := models.SyncJob{ID: "nope", PlaylistID: "p", Status: models.JobFailed}
		assert.ErrorIs(t, repo.Update(&job), shared.ErrJobNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		db := setupTestDB(t)
		p := createPlaylist(t, NewPlaylistRepository(db), "mbid-1")
		repo := NewSyncJobRepository(db)

		done := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&done))
		failed, err := done.Fail(models.CategoryCancelled, nil, models.Counters{}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Update(&failed))

		active := models.NewSyncJob(p.ID, now)
		require.NoError(t, repo.Create(&active))

		jobs, err := repo.List(map[string]any{"active": true})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, active.ID, jobs[0].ID)

		jobs, err = repo.List(map[string]any{"playlist_id": p.ID})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, active.ID, jobs[0].ID, "newest first")
		assert.Equal(t, models.CategoryCancelled, jobs[1].ErrorCategory)
	})
}

func TestTrackMatchAndDownloadRepositories(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	db := setupTestDB(t)
	store := NewStore(db)

	p := createPlaylist(t, store.Playlists, "mbid-1")
	job := models.NewSyncJob(p.ID, now)
	require.NoError(t, store.CreateJob(&job))

	tracks := []models.RemoteTrack{
		{ExternalID: "r2", Title: "Second", Artist: "Band"},
		{ExternalID: "r1", Title: "First", Artist: "Band"},
	}
	var matches []models.TrackMatch
	for i := len(tracks) - 1; i >= 0; i-- {
		m := models.NewTrackMatch(job.ID, i, tracks[i], now)
		require.NoError(t, store.CreateTrackMatch(&m))
		matches = append(matches, m)
	}

	t.Run("listed in playlist order", func(t *testing.T) {
		got, err := store.ListTrackMatches(job.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Second", got[0].Title)
		assert.Equal(t, "First", got[1].Title)
	})

	t.Run("duplicate position rejected", func(t *testing.T) {
		dup := models.NewTrackMatch(job.ID, 0, tracks[0], now)
		assert.ErrorIs(t, store.CreateTrackMatch(&dup), shared.ErrInvalidInput)
	})

	t.Run("download lifecycle", func(t *testing.T) {
		owner := matches[0]
		req := models.NewAlbumDownloadRequest(owner, models.AlbumCandidate{URL: "https://music.youtube.com/browse/MPRE1", Title: "LP"}, 2, now)
		require.NoError(t, store.CreateDownload(&req))

		dup := models.NewAlbumDownloadRequest(owner, models.AlbumCandidate{URL: req.AlbumURL}, 2, now)
		assert.ErrorIs(t, store.CreateDownload(&dup), shared.ErrInvalidInput)

		owner, err := owner.Downloading(req.ID, req.AlbumURL, now)
		require.NoError(t, err)
		require.NoError(t, store.UpdateTrackMatch(&owner))

		req, err = req.Submitted("yubal-1", now)
		require.NoError(t, err)
		req, err = req.Advance(models.DownloadRunning, now)
		require.NoError(t, err)
		req = req.Polled(0.5, now.Add(time.Second))
		require.NoError(t, store.UpdateDownload(&req))

		got, err := store.Downloads.Get(req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DownloadRunning, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, "yubal-1", got.Handle)
		assert.InDelta(t, 0.5, got.Progress, 0.001)
		require.NotNil(t, got.LastPolledAt)

		listed, err := store.ListDownloads(map[string]any{"job_id": job.ID})
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		tm, err := store.Tracks.Get(owner.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TrackDownloading, tm.Status)
		assert.Equal(t, req.ID, tm.DownloadID)
	})

	t.Run("attempts over maximum rejected", func(t *testing.T) {
		req := models.NewAlbumDownloadRequest(matches[1], models.AlbumCandidate{URL: "https://music.youtube.com/browse/MPRE2"}, 1, now)
		require.NoError(t, store.CreateDownload(&req))
		req.Attempts = 2
		assert.ErrorIs(t, store.UpdateDownload(&req), shared.ErrInvalidInput)
	})
}
