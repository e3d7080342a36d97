package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/repositories"
	"github.com/desertthunder/jamknife/internal/retry"
	"github.com/desertthunder/jamknife/internal/shared"
	tu "github.com/desertthunder/jamknife/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	playlistRef  = "pl-mbid-1"
	playlistName = "Weekly Jams for alice"
)

var remoteTracks = []models.RemoteTrack{
	{ExternalID: "rec-1", Title: "Hyperballad", Artist: "Björk", Album: "Post", ReleaseID: "rel-1"},
	{ExternalID: "rec-2", Title: "Heroes", Artist: "David Bowie", Album: "Heroes"},
	{ExternalID: "rec-3", Title: "Joga", Artist: "Björk", Album: "Homogenic"},
}

var (
	libHyperballad = models.LibraryTrack{ID: "lib-1", Title: "Hyperballad", Artist: "Björk", Album: "Post"}
	libHeroes      = models.LibraryTrack{ID: "lib-2", Title: "Heroes", Artist: "David Bowie"}
	libJoga        = models.LibraryTrack{ID: "lib-3", Title: "Jóga", Artist: "Bjork"}
)

type harness struct {
	store      *repositories.Store
	fake       *tu.FakeFetcher
	fetcher    PlaylistFetcher
	library    *tu.FakeLibrary
	catalog    *tu.FakeCatalog
	downloader *tu.FakeDownloader
	sleeper    *tu.SleepRecorder
	opts       Options
	playlist   *models.Playlist
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	shared.ConfigureDatabase(db, 1, 1)
	require.NoError(t, shared.RunMigrations(db))
	t.Cleanup(func() { db.Close() })

	store := repositories.NewStore(db)
	playlist := &models.Playlist{Ref: playlistRef, Name: playlistName, Enabled: true}
	require.NoError(t, store.Playlists.Create(playlist))

	fake := &tu.FakeFetcher{Playlists: map[string]*models.RemotePlaylist{
		playlistRef: {Ref: playlistRef, Name: playlistName, Tracks: remoteTracks},
	}}
	sleeper := &tu.SleepRecorder{}

	opts := DefaultOptions()
	opts.SubmitRate = 0
	opts.PollInterval = time.Second
	opts.DownloadTimeout = 3 * time.Second
	opts.RefreshSettle = 10 * time.Second
	opts.Sleep = sleeper.Sleep

	return &harness{
		store:      store,
		fake:       fake,
		fetcher:    fake,
		library:    &tu.FakeLibrary{Tracks: []models.LibraryTrack{libHeroes, libJoga}},
		catalog:    &tu.FakeCatalog{},
		downloader: &tu.FakeDownloader{},
		sleeper:    sleeper,
		opts:       opts,
		playlist:   playlist,
	}
}

// withPostOnCatalog makes the missing track resolvable and indexed after the library refresh.
func (h *harness) withPostOnCatalog() {
	h.catalog.Albums = map[string][]models.CatalogAlbum{"Björk Post": {postAlbum}}
	h.catalog.AlbumDetails = map[string]models.CatalogAlbum{
		"MPREb_post": {BrowseID: "MPREb_post", AudioPlaylistID: "OLAK_post", Title: "Post", Artists: []string{"Björk"}},
	}
	h.library.OnRefresh = []models.LibraryTrack{libHyperballad}
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(h.store, h.fetcher, h.library, h.catalog, h.downloader, h.opts, quietLogger())
}

func (h *harness) tracks(t *testing.T, jobID string) []*models.TrackMatch {
	t.Helper()
	tracks, err := h.store.ListTrackMatches(jobID)
	require.NoError(t, err)
	return tracks
}

func TestRunAllTracksInLibrary(t *testing.T) {
	h := newHarness(t)
	h.library.Tracks = append(h.library.Tracks, libHyperballad)

	job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.Counters{Found: 3}, job.Counters)
	assert.Equal(t, 3, job.TracksTotal)
	assert.Equal(t, "pl-"+playlistName, job.DestinationKey)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)

	assert.Zero(t, h.catalog.Calls())
	assert.Zero(t, h.downloader.Total())
	assert.Zero(t, h.library.Refreshes())

	ids, ok := h.library.Playlist(playlistName)
	require.True(t, ok)
	assert.Equal(t, []string{"lib-1", "lib-2", "lib-3"}, ids)

	stored, err := h.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, stored.Status)

	playlist, err := h.store.GetPlaylist(h.playlist.ID)
	require.NoError(t, err)
	assert.NotNil(t, playlist.LastSyncedAt)
}

func TestRunDownloadsMissingAlbum(t *testing.T) {
	h := newHarness(t)
	h.withPostOnCatalog()

	job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.Counters{Found: 2, Downloaded: 1}, job.Counters)
	assert.Equal(t, 1, h.downloader.SubmissionCount(albumURL))
	assert.Equal(t, 1, h.library.Refreshes())
	assert.Equal(t, []time.Duration{10 * time.Second}, h.sleeper.Recorded())

	tracks := h.tracks(t, job.ID)
	require.Len(t, tracks, 3)
	assert.Equal(t, models.TrackDownloaded, tracks[0].Status)
	assert.Equal(t, "lib-1", tracks[0].LibraryID)
	assert.Equal(t, albumURL, tracks[0].AlbumURL)
	assert.NotEmpty(t, tracks[0].DownloadID)

	for _, m := range tracks {
		assert.True(t, m.Status.Terminal(), "track %d is %s", m.Position, m.Status)
	}
	total := job.Counters.Found + job.Counters.Downloaded + job.Counters.NotFound + job.Counters.Errored
	assert.Equal(t, job.TracksTotal, total)

	downloads, err := h.store.ListDownloads(map[string]any{"job_id": job.ID})
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, models.DownloadSucceeded, downloads[0].Status)
	assert.Equal(t, 1, downloads[0].Attempts)
	assert.Equal(t, tracks[0].DownloadID, downloads[0].ID)

	ids, _ := h.library.Playlist(playlistName)
	assert.Equal(t, []string{"lib-1", "lib-2", "lib-3"}, ids)
}

func TestRunTrackNotOnCatalog(t *testing.T) {
	h := newHarness(t)

	job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.Counters{Found: 2, NotFound: 1}, job.Counters)
	assert.Zero(t, h.downloader.Total())
	assert.Zero(t, h.library.Refreshes())

	tracks := h.tracks(t, job.ID)
	assert.Equal(t, models.TrackNotFound, tracks[0].Status)
	assert.NotEmpty(t, tracks[0].LastError)

	ids, _ := h.library.Playlist(playlistName)
	assert.Equal(t, []string{"lib-2", "lib-3"}, ids)
}

func TestRunFetchFailure(t *testing.T) {
	tc := []struct {
		name string
		err  error
	}{
		{name: "transient", err: &retry.TransientFailure{Attempts: 3, Err: io.ErrUnexpectedEOF}},
		{name: "not found", err: shared.ErrPlaylistNotFound},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fake.Err = tt.err

			job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
			require.NoError(t, err)

			assert.Equal(t, models.JobFailed, job.Status)
			assert.Equal(t, models.CategoryFetch, job.ErrorCategory)
			assert.Contains(t, job.Error, tt.err.Error())
			assert.Empty(t, h.tracks(t, job.ID))

			_, ok := h.library.Playlist(playlistName)
			assert.False(t, ok)

			playlist, err := h.store.GetPlaylist(h.playlist.ID)
			require.NoError(t, err)
			assert.Nil(t, playlist.LastSyncedAt)
		})
	}
}

func TestStartSync(t *testing.T) {
	t.Run("one active job per playlist", func(t *testing.T) {
		h := newHarness(t)
		o := h.orchestrator()
		ctx := context.Background()

		first, err := o.StartSync(ctx, h.playlist.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobPending, first.Status)

		_, err = o.StartSync(ctx, h.playlist.ID)
		require.True(t, shared.IsConflict(err))
		var conflict *shared.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, first.ID, conflict.ActiveJobID)

		_, err = o.Run(ctx, h.playlist.ID, nil)
		assert.True(t, shared.IsConflict(err))

		done, err := o.Execute(ctx, first.ID, nil)
		require.NoError(t, err)
		assert.True(t, done.Status.Terminal())

		_, err = o.StartSync(ctx, h.playlist.ID)
		assert.NoError(t, err)
	})

	t.Run("concurrent starts reserve one job", func(t *testing.T) {
		h := newHarness(t)
		o := h.orchestrator()

		var wg sync.WaitGroup
		var mu sync.Mutex
		created, conflicts := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := o.StartSync(context.Background(), h.playlist.ID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case shared.IsConflict(err):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, 7, conflicts)

		active, err := h.store.ActiveJobs()
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("disabled playlist", func(t *testing.T) {
		h := newHarness(t)
		h.playlist.Enabled = false
		require.NoError(t, h.store.Playlists.Update(h.playlist))

		_, err := h.orchestrator().StartSync(context.Background(), h.playlist.ID)
		assert.ErrorIs(t, err, shared.ErrPlaylistDisabled)

		jobs, err := h.store.ListJobs(nil)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestRunAgainRematches(t *testing.T) {
	h := newHarness(t)
	h.library.Tracks = append(h.library.Tracks, libHyperballad)
	o := h.orchestrator()

	first, err := o.Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)
	searches := h.library.Searches()

	second, err := o.Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.JobCompleted, second.Status)
	assert.Equal(t, 2*searches, h.library.Searches())
	assert.Equal(t, 2, h.fake.Calls())
}

func TestCancel(t *testing.T) {
	t.Run("running job fails as cancelled", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()

		var o *Orchestrator
		var jobID string
		h.opts.Sleep = func(ctx context.Context, d time.Duration) error {
			require.NoError(t, o.Cancel(jobID))
			return ctx.Err()
		}
		o = h.orchestrator()

		job, err := o.StartSync(context.Background(), h.playlist.ID)
		require.NoError(t, err)
		jobID = job.ID

		job, err = o.Execute(context.Background(), jobID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.JobFailed, job.Status)
		assert.Equal(t, models.CategoryCancelled, job.ErrorCategory)
		assert.Equal(t, models.Counters{Found: 2}, job.Counters)
		assert.False(t, o.Running(jobID))

		_, ok := h.library.Playlist(playlistName)
		assert.False(t, ok)

		stored, err := h.store.GetJob(jobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, stored.Status)
	})

	t.Run("blocked job is released", func(t *testing.T) {
		h := newHarness(t)
		h.fetcher = blockingFetcher{}
		o := h.orchestrator()

		job, err := o.StartSync(context.Background(), h.playlist.ID)
		require.NoError(t, err)

		done := make(chan *models.SyncJob, 1)
		go func() {
			finished, _ := o.Execute(context.Background(), job.ID, nil)
			done <- finished
		}()
		require.Eventually(t, func() bool { return o.Running(job.ID) }, time.Second, 5*time.Millisecond)

		_, err = o.Execute(context.Background(), job.ID, nil)
		assert.ErrorIs(t, err, shared.ErrConflict)

		require.NoError(t, o.Cancel(job.ID))
		select {
		case finished := <-done:
			require.NotNil(t, finished)
			assert.Equal(t, models.JobFailed, finished.Status)
			assert.Equal(t, models.CategoryCancelled, finished.ErrorCategory)
		case <-time.After(time.Second):
			t.Fatal("job did not stop after cancel")
		}
	})

	t.Run("pending job is failed directly", func(t *testing.T) {
		h := newHarness(t)
		o := h.orchestrator()

		job, err := o.StartSync(context.Background(), h.playlist.ID)
		require.NoError(t, err)
		require.NoError(t, o.Cancel(job.ID))

		stored, err := o.GetSyncJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, stored.Status)
		assert.Equal(t, models.CategoryCancelled, stored.ErrorCategory)

		assert.ErrorIs(t, o.Cancel(job.ID), shared.ErrInvalidTransition)

		again, err := o.Execute(context.Background(), job.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, again.Status)
		assert.Zero(t, h.fake.Calls())
	})

	t.Run("unknown job", func(t *testing.T) {
		h := newHarness(t)
		assert.Error(t, h.orchestrator().Cancel("nope"))
	})

	t.Run("job failed by another process stays failed", func(t *testing.T) {
		h := newHarness(t)
		h.library.Tracks = append(h.library.Tracks, libHyperballad)
		gate := &gatedFetcher{next: h.fake, entered: make(chan struct{}), release: make(chan struct{})}
		h.fetcher = gate

		worker := h.orchestrator()
		other := NewOrchestrator(h.store, h.fake, h.library, h.catalog, h.downloader, h.opts, quietLogger())

		job, err := worker.StartSync(context.Background(), h.playlist.ID)
		require.NoError(t, err)

		done := make(chan *models.SyncJob, 1)
		go func() {
			finished, err := worker.Execute(context.Background(), job.ID, nil)
			assert.NoError(t, err)
			done <- finished
		}()

		select {
		case <-gate.entered:
		case <-time.After(time.Second):
			t.Fatal("worker never fetched the playlist")
		}

		require.False(t, other.Running(job.ID))
		require.NoError(t, other.Cancel(job.ID))
		close(gate.release)

		select {
		case finished := <-done:
			require.NotNil(t, finished)
			assert.Equal(t, models.JobFailed, finished.Status)
			assert.Equal(t, models.CategoryCancelled, finished.ErrorCategory)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}

		stored, err := h.store.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, stored.Status)
		assert.Equal(t, models.CategoryCancelled, stored.ErrorCategory)

		assert.Empty(t, h.tracks(t, job.ID))
		_, ok := h.library.Playlist(playlistName)
		assert.False(t, ok)

		assert.ErrorIs(t, other.Cancel(job.ID), shared.ErrInvalidTransition)
	})
}

// gatedFetcher signals entered and holds the fetch until release is closed, ignoring ctx.
type gatedFetcher struct {
	next    PlaylistFetcher
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) FetchRemotePlaylist(ctx context.Context, ref string) (*models.RemotePlaylist, error) {
	close(g.entered)
	<-g.release
	return g.next.FetchRemotePlaylist(ctx, ref)
}

type blockingFetcher struct{}

func (blockingFetcher) FetchRemotePlaylist(ctx context.Context, ref string) (*models.RemotePlaylist, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJobTimeout(t *testing.T) {
	h := newHarness(t)
	h.fetcher = blockingFetcher{}
	h.opts.JobTimeout = 50 * time.Millisecond

	job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, models.CategoryTimeout, job.ErrorCategory)
	assert.True(t, errors.Is(errJobTimeout, context.DeadlineExceeded))
}

func TestDownloadOutcomes(t *testing.T) {
	t.Run("downloaded but not indexed", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()
		h.library.OnRefresh = nil

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.JobCompleted, job.Status)
		assert.Equal(t, models.Counters{Found: 2, Errored: 1}, job.Counters)
		assert.Equal(t, 1, h.library.Refreshes())

		tracks := h.tracks(t, job.ID)
		assert.Equal(t, models.TrackErrored, tracks[0].Status)
		assert.Contains(t, tracks[0].LastError, shared.ErrNotIndexed.Error())
	})

	t.Run("timeout is not resubmitted", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()
		h.downloader.Scripts = map[string][][]models.DownloadState{
			albumURL: {{{Status: models.DownloadRunning, Progress: 0.3}}},
		}

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.JobCompleted, job.Status)
		assert.Equal(t, models.Counters{Found: 2, Errored: 1}, job.Counters)
		assert.Equal(t, 1, h.downloader.SubmissionCount(albumURL))
		assert.Zero(t, h.library.Refreshes())

		downloads, err := h.store.ListDownloads(map[string]any{"job_id": job.ID})
		require.NoError(t, err)
		require.Len(t, downloads, 1)
		assert.Equal(t, models.DownloadFailed, downloads[0].Status)
		assert.Contains(t, downloads[0].LastError, shared.ErrDownloadTimeout.Error())

		tracks := h.tracks(t, job.ID)
		assert.Equal(t, models.TrackErrored, tracks[0].Status)
	})

	t.Run("failed download is resubmitted", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()
		h.downloader.Scripts = map[string][][]models.DownloadState{
			albumURL: {
				{{Status: models.DownloadFailed, Error: "extractor error"}},
				{{Status: models.DownloadSucceeded, Progress: 1}},
			},
		}

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.Counters{Found: 2, Downloaded: 1}, job.Counters)
		assert.Equal(t, 2, h.downloader.SubmissionCount(albumURL))

		downloads, err := h.store.ListDownloads(map[string]any{"job_id": job.ID})
		require.NoError(t, err)
		require.Len(t, downloads, 1)
		assert.Equal(t, 2, downloads[0].Attempts)
		assert.Equal(t, models.DownloadSucceeded, downloads[0].Status)
	})

	t.Run("failed download after every attempt", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()
		h.downloader.Scripts = map[string][][]models.DownloadState{
			albumURL: {{{Status: models.DownloadFailed, Error: "extractor error"}}},
		}

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.Counters{Found: 2, Errored: 1}, job.Counters)
		assert.Equal(t, h.opts.MaxAttempts, h.downloader.SubmissionCount(albumURL))

		tracks := h.tracks(t, job.ID)
		assert.Equal(t, models.TrackErrored, tracks[0].Status)
		assert.Equal(t, h.opts.MaxAttempts, tracks[0].RetryCount)
	})

	t.Run("tracks on one album share a download", func(t *testing.T) {
		h := newHarness(t)
		h.withPostOnCatalog()
		isobel := models.RemoteTrack{ExternalID: "rec-4", Title: "Isobel", Artist: "Björk", Album: "Post"}
		h.fake.Playlists[playlistRef].Tracks = append(append([]models.RemoteTrack{}, remoteTracks...), isobel)
		h.library.OnRefresh = append(h.library.OnRefresh, models.LibraryTrack{ID: "lib-4", Title: "Isobel", Artist: "Björk"})

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.Counters{Found: 2, Downloaded: 2}, job.Counters)
		assert.Equal(t, 1, h.downloader.Total())

		tracks := h.tracks(t, job.ID)
		require.Len(t, tracks, 4)
		assert.Equal(t, tracks[0].DownloadID, tracks[3].DownloadID)

		ids, _ := h.library.Playlist(playlistName)
		assert.Equal(t, []string{"lib-1", "lib-2", "lib-3", "lib-4"}, ids)
	})

	t.Run("materialize failure keeps the job", func(t *testing.T) {
		h := newHarness(t)
		h.library.MaterializeErr = errors.New("plex unavailable")

		job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.JobCompleted, job.Status)
		assert.Empty(t, job.DestinationKey)
		assert.Contains(t, job.Error, "plex unavailable")
	})
}

func TestExecuteResumesDownloadingJob(t *testing.T) {
	h := newHarness(t)
	h.withPostOnCatalog()
	ctx := context.Background()
	now := time.Now().UTC()

	job := models.NewSyncJob(h.playlist.ID, now)
	require.NoError(t, h.store.CreateJob(&job))
	var err error
	for _, status := range []models.JobStatus{models.JobFetching, models.JobMatching, models.JobDownloading} {
		job, err = job.Transition(status, now)
		require.NoError(t, err)
	}
	job.TracksTotal = len(remoteTracks)
	require.NoError(t, h.store.UpdateJob(&job))

	handle, err := h.downloader.SubmitDownload(ctx, albumURL)
	require.NoError(t, err)

	first := models.NewTrackMatch(job.ID, 0, remoteTracks[0], now)
	album := models.AlbumCandidate{URL: albumURL, Title: "Post", Artist: "Björk"}
	req := models.NewAlbumDownloadRequest(first, album, 2, now)
	req, err = req.Submitted(handle, now)
	require.NoError(t, err)
	first, err = first.Downloading(req.ID, albumURL, now)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateTrackMatch(&first))
	require.NoError(t, h.store.CreateDownload(&req))

	for i, id := range []string{"lib-2", "lib-3"} {
		m := models.NewTrackMatch(job.ID, i+1, remoteTracks[i+1], now)
		m, err = m.Found(id, now)
		require.NoError(t, err)
		require.NoError(t, h.store.CreateTrackMatch(&m))
	}

	done, err := h.orchestrator().Execute(ctx, job.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, models.Counters{Found: 2, Downloaded: 1}, done.Counters)
	assert.Zero(t, h.fake.Calls())
	assert.Equal(t, 1, h.downloader.Total())
	assert.Zero(t, h.catalog.Calls())

	tracks := h.tracks(t, job.ID)
	assert.Equal(t, models.TrackDownloaded, tracks[0].Status)
}

func TestRunReportsProgress(t *testing.T) {
	h := newHarness(t)
	h.withPostOnCatalog()
	progress := make(chan ProgressUpdate, 128)

	job, err := h.orchestrator().Run(context.Background(), h.playlist.ID, progress)
	require.NoError(t, err)
	close(progress)

	var phases []Phase
	for u := range progress {
		assert.Equal(t, job.ID, u.JobID)
		phases = append(phases, u.Phase)
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, FetchPlaylist, phases[0])
	assert.Equal(t, JobFinished, phases[len(phases)-1])
	for _, p := range []Phase{MatchTracks, ResolveAlbums, DownloadAlbums, RefreshLibrary, RematchTracks, MaterializePlaylist} {
		assert.Contains(t, phases, p)
	}
}

// inFlightDownloader counts fetch service jobs between submission and their terminal poll.
type inFlightDownloader struct {
	*tu.FakeDownloader
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (d *inFlightDownloader) SubmitDownload(ctx context.Context, albumURL string) (string, error) {
	handle, err := d.FakeDownloader.SubmitDownload(ctx, albumURL)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	d.inFlight++
	d.peak = max(d.peak, d.inFlight)
	d.mu.Unlock()
	return handle, nil
}

func (d *inFlightDownloader) PollDownload(ctx context.Context, handle string) (models.DownloadState, error) {
	time.Sleep(25 * time.Millisecond)
	state, err := d.FakeDownloader.PollDownload(ctx, handle)
	if err == nil && state.Status.Terminal() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}
	return state, err
}

func TestDownloadPoolBoundsConcurrency(t *testing.T) {
	h := newHarness(t)
	h.opts.Workers = 2
	h.library.Tracks = nil
	h.catalog.Albums = map[string][]models.CatalogAlbum{}
	h.catalog.AlbumDetails = map[string]models.CatalogAlbum{}

	var tracks []models.RemoteTrack
	for i := range 5 {
		title, album := fmt.Sprintf("Track %d", i), fmt.Sprintf("Album %d", i)
		browseID := fmt.Sprintf("MPREb_%d", i)
		tracks = append(tracks, models.RemoteTrack{ExternalID: fmt.Sprintf("rec-%d", i), Title: title, Artist: "Stereolab", Album: album})
		h.catalog.Albums["Stereolab "+album] = []models.CatalogAlbum{{BrowseID: browseID, Title: album, Artists: []string{"Stereolab"}}}
		h.catalog.AlbumDetails[browseID] = models.CatalogAlbum{
			BrowseID: browseID, AudioPlaylistID: fmt.Sprintf("OLAK_%d", i), Title: album, Artists: []string{"Stereolab"},
		}
		h.library.OnRefresh = append(h.library.OnRefresh, models.LibraryTrack{ID: fmt.Sprintf("lib-s%d", i), Title: title, Artist: "Stereolab"})
	}
	h.fake.Playlists[playlistRef] = &models.RemotePlaylist{Ref: playlistRef, Name: playlistName, Tracks: tracks}

	downloader := &inFlightDownloader{FakeDownloader: h.downloader}
	o := NewOrchestrator(h.store, h.fetcher, h.library, h.catalog, downloader, h.opts, quietLogger())

	job, err := o.Run(context.Background(), h.playlist.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.Counters{Downloaded: 5}, job.Counters)
	assert.Equal(t, 5, h.downloader.Total())
	assert.LessOrEqual(t, downloader.peak, h.opts.Workers)
	assert.Greater(t, downloader.peak, 1)
	assert.Zero(t, downloader.inFlight)
}
