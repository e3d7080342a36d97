package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgProgressUpdate
	MsgSyncComplete
	MsgJobPolled
	MsgCancelSent
)

type jobState struct {
	job    *models.SyncJob
	tracks []*models.TrackMatch
	err    error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []*models.Playlist, err error) Msg {
	return Msg{
		kind: MsgPlaylistsFetched,
		data: struct {
			playlists []*models.Playlist
			err       error
		}{playlists, err},
	}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(job *models.SyncJob, tracks []*models.TrackMatch, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: jobState{job, tracks, err}}
}

// jobPolledMsg is the constructor for [MsgJobPolled]
func jobPolledMsg(job *models.SyncJob, tracks []*models.TrackMatch, err error) Msg {
	return Msg{kind: MsgJobPolled, data: jobState{job, tracks, err}}
}

// cancelSentMsg is the constructor for [MsgCancelSent]
func cancelSentMsg(err error) Msg {
	return Msg{kind: MsgCancelSent, data: err}
}
