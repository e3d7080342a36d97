package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPlaylists struct {
	playlists []*models.Playlist
	err       error
}

func (s staticPlaylists) List(map[string]any) ([]*models.Playlist, error) { return s.playlists, s.err }

type fakeSyncer struct {
	mu        sync.Mutex
	updates   []tasks.ProgressUpdate
	job       *models.SyncJob
	runErr    error
	polls     []*models.SyncJob
	tracks    []*models.TrackMatch
	cancelled []string
}

func (f *fakeSyncer) Run(_ context.Context, _ string, progress chan<- tasks.ProgressUpdate) (*models.SyncJob, error) {
	for _, u := range f.updates {
		progress <- u
	}
	return f.job, f.runErr
}

func (f *fakeSyncer) GetSyncJob(id string) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		return nil, errors.New("sync job not found")
	}
	job := f.polls[0]
	if len(f.polls) > 1 {
		f.polls = f.polls[1:]
	}
	return job, nil
}

func (f *fakeSyncer) TrackMatches(string) ([]*models.TrackMatch, error) { return f.tracks, nil }

func (f *fakeSyncer) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

var resultTracks = []*models.TrackMatch{
	{Position: 0, Title: "Hyperballad", Artist: "Björk", Status: models.TrackDownloaded},
	{Position: 1, Title: "Heroes", Artist: "David Bowie", Status: models.TrackFound},
	{Position: 2, Title: "Nowhere", Artist: "Nobody", Status: models.TrackNotFound, LastError: "no catalog match"},
}

func keyPress(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain feeds progress messages to the model until the sync completes.
func drain(t *testing.T, m *Model) {
	t.Helper()
	for range 100 {
		if m.view != SyncView {
			return
		}
		m.Update(m.waitForProgress()())
	}
	t.Fatal("sync did not complete")
}

func TestInteractiveSync(t *testing.T) {
	playlists := staticPlaylists{playlists: []*models.Playlist{{ID: "pl-1", Ref: "mbid-1", Name: "Weekly Jams for alice", Enabled: true}}}
	syncer := &fakeSyncer{
		updates: []tasks.ProgressUpdate{
			{JobID: "job-1", Phase: tasks.FetchPlaylist, Step: 1, Total: 1, Message: "Fetching playlist mbid-1 from ListenBrainz..."},
			{JobID: "job-1", Phase: tasks.MatchTracks, Step: 2, Total: 3, Message: "[2/3] David Bowie - Heroes: found"},
		},
		job: &models.SyncJob{
			ID:          "job-1",
			Status:      models.JobCompleted,
			TracksTotal: 3,
			Counters:    models.Counters{Found: 1, Downloaded: 1, NotFound: 1},
		},
		tracks: resultTracks,
	}

	m := NewModel(context.Background(), playlists, syncer)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.fetchPlaylists()())
	require.Equal(t, PlaylistListView, m.view)

	m.Update(keyPress("enter"))
	require.Equal(t, ConfirmView, m.view)
	assert.Contains(t, m.View(), "Sync 'Weekly Jams for alice' now?")

	_, cmd := m.Update(keyPress("y"))
	require.NotNil(t, cmd)
	require.Equal(t, SyncView, m.view)

	drain(t, m)

	require.Equal(t, ResultView, m.view)
	assert.Equal(t, "job-1", m.jobID)
	assert.Equal(t, models.JobCompleted, m.Job().Status)
	assert.Len(t, m.log, 2)

	view := m.View()
	assert.Contains(t, view, "Sync Complete")
	assert.Contains(t, view, "Downloaded: 1")
	assert.Contains(t, view, "Not found: 1")

	t.Run("restart returns to playlists", func(t *testing.T) {
		_, cmd := m.Update(keyPress("r"))
		require.NotNil(t, cmd)
		assert.Equal(t, PlaylistListView, m.view)
		assert.Nil(t, m.Job())
		assert.Empty(t, m.log)
	})
}

func TestConfirmDecline(t *testing.T) {
	playlists := staticPlaylists{playlists: []*models.Playlist{{ID: "pl-1", Name: "Daily Jams", Enabled: true}}}
	m := NewModel(context.Background(), playlists, &fakeSyncer{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.fetchPlaylists()())
	m.Update(keyPress("enter"))
	require.Equal(t, ConfirmView, m.view)

	m.Update(keyPress("n"))
	assert.Equal(t, PlaylistListView, m.view)
	assert.Nil(t, m.selected)
}

func TestSyncFailureShown(t *testing.T) {
	syncer := &fakeSyncer{
		job: &models.SyncJob{
			ID:            "job-2",
			Status:        models.JobFailed,
			ErrorCategory: models.CategoryFetch,
			Error:         "failed to fetch playlist: service unavailable",
		},
	}
	m := NewModel(context.Background(), staticPlaylists{}, syncer)
	m.selected = &models.Playlist{ID: "pl-1", Name: "Weekly Jams"}
	m.view = SyncView
	m.startSync()
	drain(t, m)

	view := m.View()
	assert.Contains(t, view, "Sync failed (fetch_failed)")
	assert.Contains(t, view, "service unavailable")
}

func TestPlaylistFetchError(t *testing.T) {
	m := NewModel(context.Background(), staticPlaylists{err: errors.New("database is locked")}, &fakeSyncer{})
	_, cmd := m.Update(m.fetchPlaylists()())
	require.NotNil(t, cmd)
	assert.EqualError(t, m.Err(), "database is locked")
	assert.Contains(t, m.View(), "Error: database is locked")
}

func TestWatch(t *testing.T) {
	downloading := []*models.TrackMatch{
		{Position: 0, Title: "Hyperballad", Artist: "Björk", Status: models.TrackDownloading},
		{Position: 1, Title: "Heroes", Artist: "David Bowie", Status: models.TrackFound},
	}
	syncer := &fakeSyncer{
		polls: []*models.SyncJob{
			{ID: "job-3", Status: models.JobDownloading, TracksTotal: 2},
			{ID: "job-3", Status: models.JobCompleted, TracksTotal: 2, Counters: models.Counters{Found: 1, Downloaded: 1}},
		},
		tracks: downloading,
	}

	m := NewWatchModel(context.Background(), syncer, "job-3", time.Millisecond)
	require.NotNil(t, m.Init())
	assert.Equal(t, 100*time.Millisecond, m.pollEvery)

	_, cmd := m.Update(m.pollJob()())
	require.NotNil(t, cmd)
	require.Equal(t, SyncView, m.view)
	assert.InDelta(t, 0.5, m.ratio(), 0.001)

	view := m.View()
	assert.Contains(t, view, "Job downloading")
	assert.Contains(t, view, "↓ Björk - Hyperballad")

	t.Run("cancel", func(t *testing.T) {
		_, cmd := m.Update(keyPress("c"))
		require.NotNil(t, cmd)
		m.Update(cmd())
		assert.Equal(t, []string{"job-3"}, syncer.cancelled)
		assert.Contains(t, m.View(), "Cancellation requested")
	})

	syncer.tracks = resultTracks[:2]
	m.Update(m.pollJob()())
	assert.Equal(t, ResultView, m.view)
	assert.Contains(t, m.View(), "Sync Complete")
	assert.NotContains(t, m.View(), "restart")
}

func TestWatchUnknownJob(t *testing.T) {
	m := NewWatchModel(context.Background(), &fakeSyncer{}, "missing", time.Second)
	_, cmd := m.Update(m.pollJob()())
	require.NotNil(t, cmd)
	assert.Error(t, m.Err())
}

func TestRenderBar(t *testing.T) {
	assert.Contains(t, renderBar(0), "  0%")
	assert.Contains(t, renderBar(0.5), " 50%")
	assert.Contains(t, renderBar(1), "100%")
}
