package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/jamknife/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist *models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := string(i.playlist.Kind)
	if i.playlist.Scheduled() {
		desc = fmt.Sprintf("%s • %s at %s", desc, i.playlist.SyncDay, i.playlist.SyncTime)
	}
	if i.playlist.LastSyncedAt != nil {
		desc = fmt.Sprintf("%s • synced %s", desc, i.playlist.LastSyncedAt.Local().Format("Jan 2 15:04"))
	}
	return desc
}

// trackItem wraps [models.TrackMatch] to implement [list.Item].
type trackItem struct {
	track *models.TrackMatch
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string {
	return fmt.Sprintf("%d. %s - %s", i.track.Position+1, i.track.Artist, i.track.Title)
}
func (i trackItem) Description() string {
	desc := styles.Track(i.track.Status).Render(string(i.track.Status))
	if i.track.LastError != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.LastError)
	}
	return desc
}
