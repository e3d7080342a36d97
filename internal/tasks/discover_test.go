package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDiscoverer struct {
	playlists []models.RemotePlaylist
	err       error
}

func (s staticDiscoverer) DiscoverPlaylists(context.Context) ([]models.RemotePlaylist, error) {
	return s.playlists, s.err
}

func TestDiscovery(t *testing.T) {
	defaults := shared.ScheduleConfig{DailyTime: "06:00", WeeklyDay: "monday", WeeklyTime: "06:30"}
	source := staticDiscoverer{playlists: []models.RemotePlaylist{
		{Ref: "daily-1", Name: "Daily Jams for alice, 2026-01-05 Mon", CreatedFor: "alice"},
		{Ref: "weekly-1", Name: "Weekly Exploration for alice, week of 2026-01-05 Mon", CreatedFor: "alice"},
		{Ref: "other-1", Name: "Top Discoveries of 2025 for alice"},
		{Ref: "known", Name: "Weekly Jams for alice, week of 2025-12-29 Mon"},
	}}

	t.Run("registers new generated playlists", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Playlists.Create(&models.Playlist{Ref: "known", Name: "Weekly Jams for alice"}))

		added, err := NewDiscovery(source, h.store.Playlists, defaults, quietLogger()).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, added, 2)

		daily, err := h.store.Playlists.GetByRef("daily-1")
		require.NoError(t, err)
		assert.Equal(t, models.PlaylistDaily, daily.Kind)
		assert.Equal(t, models.SyncDaily, daily.SyncDay)
		assert.Equal(t, "06:00", daily.SyncTime)
		assert.False(t, daily.Enabled)

		weekly, err := h.store.Playlists.GetByRef("weekly-1")
		require.NoError(t, err)
		assert.Equal(t, models.PlaylistWeekly, weekly.Kind)
		assert.Equal(t, "monday", weekly.SyncDay)
		assert.Equal(t, "06:30", weekly.SyncTime)

		_, err = h.store.Playlists.GetByRef("other-1")
		assert.ErrorIs(t, err, shared.ErrPlaylistNotFound)

		again, err := NewDiscovery(source, h.store.Playlists, defaults, quietLogger()).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("invalid defaults leave playlists unscheduled", func(t *testing.T) {
		h := newHarness(t)
		bad := shared.ScheduleConfig{DailyTime: "6am", EnableDiscovered: true}

		added, err := NewDiscovery(source, h.store.Playlists, bad, quietLogger()).Run(context.Background())
		require.NoError(t, err)
		for _, p := range added {
			assert.False(t, p.Scheduled(), p.Name)
			assert.True(t, p.Enabled)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		h := newHarness(t)
		_, err := NewDiscovery(staticDiscoverer{err: errors.New("boom")}, h.store.Playlists, defaults, quietLogger()).Run(context.Background())
		assert.Error(t, err)
	})
}
