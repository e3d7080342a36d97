package tasks

import (
	"fmt"

	"github.com/desertthunder/jamknife/internal/models"
)

// ProgressUpdate represents a progress event during a sync job.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	JobID   string // Job the update belongs to
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylist Phase = iota
	MatchTracks
	ResolveAlbums
	DownloadAlbums
	RefreshLibrary
	RematchTracks
	MaterializePlaylist
	JobFinished
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylist:
		return "fetch_playlist"
	case MatchTracks:
		return "match_tracks"
	case ResolveAlbums:
		return "resolve_albums"
	case DownloadAlbums:
		return "download_albums"
	case RefreshLibrary:
		return "refresh_library"
	case RematchTracks:
		return "rematch_tracks"
	case MaterializePlaylist:
		return "materialize_playlist"
	case JobFinished:
		return "finished"
	default:
		return ""
	}
}

func fetchPlaylistUpdate(jobID, ref string) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlist %s from ListenBrainz...", ref),
	}
}

func foundPlaylistUpdate(jobID string, pl *models.RemotePlaylist) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", pl.Name, len(pl.Tracks)),
		Data:    pl,
	}
}

func matchTrackUpdate(jobID string, step, total int, m models.TrackMatch) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   MatchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s: %s", step, total, m.Artist, m.Title, m.Status),
		Data:    m,
	}
}

func resolveTrackUpdate(jobID string, step, total int, m models.TrackMatch, album *models.AlbumCandidate) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✗ %s - %s: no album found", step, total, m.Artist, m.Title)
	if album != nil {
		msg = fmt.Sprintf("[%d/%d] %s - %s → %s (%s)", step, total, m.Artist, m.Title, album.Title, album.Strategy)
	}
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   ResolveAlbums,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    album,
	}
}

func downloadUpdate(jobID string, step, total int, req models.AlbumDownloadRequest) ProgressUpdate {
	mark := "✓"
	if req.Status != models.DownloadSucceeded {
		mark = "✗"
	}
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   DownloadAlbums,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s - %s (attempt %d)", step, total, mark, req.Artist, req.AlbumTitle, req.Attempts),
		Data:    req,
	}
}

func submittedUpdate(jobID string, total int, req models.AlbumDownloadRequest) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   DownloadAlbums,
		Total:   total,
		Message: fmt.Sprintf("Submitted %s - %s (attempt %d/%d)", req.Artist, req.AlbumTitle, req.Attempts, req.MaxAttempts),
		Data:    req,
	}
}

func refreshUpdate(jobID string) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   RefreshLibrary,
		Step:    1,
		Total:   1,
		Message: "Refreshing library...",
	}
}

func rematchUpdate(jobID string, step, total int, m models.TrackMatch) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   RematchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s: %s", step, total, m.Artist, m.Title, m.Status),
		Data:    m,
	}
}

func materializeUpdate(jobID, name string, count int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   MaterializePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing playlist %s (%d tracks)...", name, count),
	}
}

func finishedUpdate(job models.SyncJob) ProgressUpdate {
	msg := fmt.Sprintf("Sync %s: %d found, %d downloaded, %d not found, %d errored",
		job.Status, job.Counters.Found, job.Counters.Downloaded, job.Counters.NotFound, job.Counters.Errored)
	if job.ErrorCategory != models.CategoryNone {
		msg = fmt.Sprintf("Sync failed (%s): %s", job.ErrorCategory, job.Error)
	}
	return ProgressUpdate{
		JobID:   job.ID,
		Phase:   JobFinished,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    job,
	}
}
