package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/gorilla/mux"
)

// Syncs is the sync job surface of the orchestrator.
type Syncs interface {
	StartSync(ctx context.Context, playlistID string) (*models.SyncJob, error)
	GetSyncJob(id string) (*models.SyncJob, error)
	TrackMatches(jobID string) ([]*models.TrackMatch, error)
	Cancel(jobID string) error
}

// Store lists persisted records.
type Store interface {
	ListJobs(criteria map[string]any) ([]*models.SyncJob, error)
	ListDownloads(criteria map[string]any) ([]*models.AlbumDownloadRequest, error)
}

// Playlists lists registered playlists.
type Playlists interface {
	List(criteria map[string]any) ([]*models.Playlist, error)
}

// Dispatcher hands reserved jobs to the task queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// API implements the HTTP handlers.
type API struct {
	syncs     Syncs
	store     Store
	playlists Playlists
	dispatch  Dispatcher
	fetcher   HealthChecker
	logger    *log.Logger
}

func NewAPI(syncs Syncs, store Store, playlists Playlists, dispatch Dispatcher, fetcher HealthChecker, logger *log.Logger) *API {
	return &API{syncs: syncs, store: store, playlists: playlists, dispatch: dispatch, fetcher: fetcher, logger: logger}
}

type errorBody struct {
	Error       string `json:"error"`
	ActiveJobID string `json:"activeJobId,omitempty"`
}

type startSyncRequest struct {
	PlaylistID string `json:"playlistId"`
}

// Health handles GET /api/health
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "yubal": "ok"}
	if a.fetcher != nil {
		if err := a.fetcher.Health(r.Context()); err != nil {
			body["yubal"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// ListPlaylists handles GET /api/playlists
func (a *API) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	criteria := map[string]any{}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "enabled must be true or false"})
			return
		}
		criteria["enabled"] = enabled
	}

	playlists, err := a.playlists.List(criteria)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(playlists))
}

// StartSync handles POST /api/sync-jobs
func (a *API) StartSync(w http.ResponseWriter, r *http.Request) {
	var req startSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.PlaylistID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "playlistId is required"})
		return
	}

	job, err := a.syncs.StartSync(r.Context(), req.PlaylistID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.dispatch.Dispatch(r.Context(), job.ID); err != nil {
		a.logger.Error("failed to enqueue sync job", "job", job.ID, "error", err)
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListSyncJobs handles GET /api/sync-jobs
func (a *API) ListSyncJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{"limit": 50}
	if v := q.Get("playlistId"); v != "" {
		criteria["playlist_id"] = v
	}
	if v := q.Get("status"); v != "" {
		status := models.JobStatus(v)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + v})
			return
		}
		criteria["status"] = status
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		criteria["limit"] = limit
	}

	jobs, err := a.store.ListJobs(criteria)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

// GetSyncJob handles GET /api/sync-jobs/{id}
func (a *API) GetSyncJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.syncs.GetSyncJob(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListTracks handles GET /api/sync-jobs/{id}/tracks
func (a *API) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.syncs.TrackMatches(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tracks))
}

// CancelSyncJob handles POST /api/sync-jobs/{id}/cancel
func (a *API) CancelSyncJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.syncs.Cancel(id); err != nil {
		a.writeError(w, err)
		return
	}

	job, err := a.syncs.GetSyncJob(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// ListDownloads handles GET /api/downloads
func (a *API) ListDownloads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{"limit": 100}
	if v := q.Get("jobId"); v != "" {
		criteria["job_id"] = v
	}
	if v := q.Get("status"); v != "" {
		criteria["status"] = models.DownloadStatus(v)
	}

	downloads, err := a.store.ListDownloads(criteria)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(downloads))
}

// writeError maps sentinel errors to status codes.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var conflict *shared.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), ActiveJobID: conflict.ActiveJobID})
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, shared.ErrPlaylistDisabled):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, shared.ErrPlaylistNotFound), errors.Is(err, shared.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, shared.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		a.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
