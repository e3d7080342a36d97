package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

var errJobTimeout = fmt.Errorf("%w: sync job exceeded its time budget", context.DeadlineExceeded)

// fetchFailure marks errors from the remote playlist fetch, the only job-fatal step.
type fetchFailure struct{ err error }

func (e *fetchFailure) Error() string { return "failed to fetch playlist: " + e.err.Error() }
func (e *fetchFailure) Unwrap() error { return e.err }

// Orchestrator drives sync jobs: fetch the remote playlist, match every track against the library,
// resolve and download what is missing, refresh and re-match, then materialize the playlist.
//
// Per-track failures are recorded on the track and never fail the job. Only a failed playlist
// fetch, cancellation and the job timeout end a job as failed.
type Orchestrator struct {
	store     JobStateStore
	fetcher   PlaylistFetcher
	library   Library
	matcher   *Matcher
	resolver  *Resolver
	downloads *DownloadCoordinator
	opts      Options
	logger    *log.Logger

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// NewOrchestrator creates an Orchestrator over its collaborators.
func NewOrchestrator(
	store JobStateStore,
	fetcher PlaylistFetcher,
	library Library,
	catalog Catalog,
	downloader Downloader,
	opts Options,
	logger *log.Logger,
) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		library:   library,
		matcher:   NewMatcher(library, opts.MatchThreshold, shared.WithLogger(logger, "component", "matcher")),
		resolver:  NewResolver(catalog, opts.ResolveThreshold, shared.WithLogger(logger, "component", "resolver")),
		downloads: NewDownloadCoordinator(downloader, store, opts, shared.WithLogger(logger, "component", "downloads")),
		opts:      opts,
		logger:    logger,
		running:   make(map[string]context.CancelCauseFunc),
	}
}

// StartSync reserves a pending job for an enabled playlist.
//
// Fails with a [shared.ConflictError] while another job for the playlist is not terminal.
func (o *Orchestrator) StartSync(ctx context.Context, playlistID string) (*models.SyncJob, error) {
	playlist, err := o.store.GetPlaylist(playlistID)
	if err != nil {
		return nil, err
	}
	if !playlist.Enabled {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistDisabled, playlist.Name)
	}

	job := models.NewSyncJob(playlist.ID, o.opts.Now())
	if err := o.store.CreateJob(&job); err != nil {
		return nil, err
	}
	o.logger.Info("sync job created", "job", job.ID, "playlist", playlist.Name)
	return &job, nil
}

// Run reserves a job for the playlist and executes it to a terminal state.
func (o *Orchestrator) Run(ctx context.Context, playlistID string, progress chan<- ProgressUpdate) (*models.SyncJob, error) {
	job, err := o.StartSync(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, job.ID, progress)
}

// Execute drives a reserved job to a terminal state, resuming it when it already started.
//
// Resumed jobs keep terminal track outcomes and re-poll downloads that already have a handle.
// A job ending as failed is not an error; the returned error reports that the job could not be
// loaded or its state could not be written.
func (o *Orchestrator) Execute(ctx context.Context, jobID string, progress chan<- ProgressUpdate) (*models.SyncJob, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	ctx, stop := context.WithTimeoutCause(ctx, o.opts.JobTimeout, errJobTimeout)
	defer stop()

	o.mu.Lock()
	if _, ok := o.running[jobID]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is already running", shared.ErrConflict, jobID)
	}
	job, err := o.store.GetJob(jobID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if job.Status.Terminal() {
		o.mu.Unlock()
		return job, nil
	}
	o.running[jobID] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, jobID)
		o.mu.Unlock()
	}()

	playlist, err := o.store.GetPlaylist(job.PlaylistID)
	if err != nil {
		return nil, err
	}

	r := &jobRun{
		o:        o,
		job:      *job,
		playlist: playlist,
		requests: make(map[string]models.AlbumDownloadRequest),
		progress: progress,
		logger:   shared.WithLogger(o.logger, "job", job.ID),
	}

	if job.Status != models.JobPending {
		r.logger.Info("resuming sync job", "status", job.Status)
	}

	err = r.execute(ctx)
	if err != nil && !errors.Is(err, shared.ErrJobFinished) {
		err = r.abort(ctx, err)
	}
	if errors.Is(err, shared.ErrJobFinished) {
		stored, gerr := o.store.GetJob(jobID)
		if gerr != nil {
			return &r.job, gerr
		}
		r.logger.Warn("sync job was finished elsewhere, stopping", "status", stored.Status, "category", stored.ErrorCategory)
		r.job = *stored
		err = nil
	}
	if err != nil {
		return &r.job, err
	}
	sendProgress(progress, finishedUpdate(r.job))
	return &r.job, nil
}

// Cancel stops a job. A running job is cancelled cooperatively and fails at its next check; a
// job that is not running here is failed directly, and a worker in another process stops at its
// next job status write.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cancel, ok := o.running[jobID]; ok {
		cancel(shared.ErrCancelled)
		return nil
	}

	job, err := o.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", shared.ErrInvalidTransition, jobID, job.Status)
	}

	tracks, err := o.store.ListTrackMatches(jobID)
	if err != nil {
		return err
	}
	failed, err := job.Fail(models.CategoryCancelled, shared.ErrCancelled, models.CountTracks(deref(tracks)), o.opts.Now())
	if err != nil {
		return err
	}
	if err := o.store.UpdateJob(&failed); err != nil {
		if errors.Is(err, shared.ErrJobFinished) {
			return fmt.Errorf("%w: %w", shared.ErrInvalidTransition, err)
		}
		return err
	}
	return nil
}

// Running reports whether the job is executing in this process.
func (o *Orchestrator) Running(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[jobID]
	return ok
}

// GetSyncJob returns a job by id.
func (o *Orchestrator) GetSyncJob(id string) (*models.SyncJob, error) {
	return o.store.GetJob(id)
}

// TrackMatches returns a job's track outcomes in playlist order.
func (o *Orchestrator) TrackMatches(jobID string) ([]*models.TrackMatch, error) {
	if _, err := o.store.GetJob(jobID); err != nil {
		return nil, err
	}
	return o.store.ListTrackMatches(jobID)
}

// jobRun is the in-memory view of one job during execution. Every change is written back to the
// store as it happens.
type jobRun struct {
	o        *Orchestrator
	job      models.SyncJob
	playlist *models.Playlist
	tracks   []models.TrackMatch
	requests map[string]models.AlbumDownloadRequest
	progress chan<- ProgressUpdate
	logger   *log.Logger
}

func (r *jobRun) execute(ctx context.Context) error {
	remote, err := r.fetch(ctx)
	if err != nil {
		return err
	}
	if err := r.match(ctx, remote); err != nil {
		return err
	}
	if err := r.download(ctx); err != nil {
		return err
	}
	return r.finalize(ctx)
}

// abort records the job as failed with a category derived from err.
func (r *jobRun) abort(ctx context.Context, err error) error {
	category := models.CategoryInternal
	var ff *fetchFailure
	switch {
	case ctx.Err() != nil && errors.Is(context.Cause(ctx), context.DeadlineExceeded):
		category, err = models.CategoryTimeout, context.Cause(ctx)
	case ctx.Err() != nil:
		category, err = models.CategoryCancelled, shared.ErrCancelled
	case errors.As(err, &ff):
		category = models.CategoryFetch
	}

	failed, ferr := r.job.Fail(category, err, models.CountTracks(r.tracks), r.o.opts.Now())
	if ferr != nil {
		return ferr
	}
	if ferr := r.o.store.UpdateJob(&failed); ferr != nil {
		return ferr
	}
	r.job = failed
	r.logger.Error("sync job failed", "category", category, "error", err)
	return nil
}

// advance moves the job to status to and persists it. Moving to the current status is a no-op.
func (r *jobRun) advance(to models.JobStatus) error {
	if r.job.Status == to {
		return nil
	}
	next, err := r.job.Transition(to, r.o.opts.Now())
	if err != nil {
		return err
	}
	if err := r.o.store.UpdateJob(&next); err != nil {
		return err
	}
	r.job = next
	r.logger.Debug("job status changed", "status", to)
	return nil
}

// setTrack persists an updated track and replaces it in the in-memory view.
func (r *jobRun) setTrack(i int, m models.TrackMatch) error {
	if err := r.o.store.UpdateTrackMatch(&m); err != nil {
		return err
	}
	r.tracks[i] = m
	return nil
}

// fetch loads existing track rows and fetches the remote playlist unless every track already
// has a row.
func (r *jobRun) fetch(ctx context.Context) ([]models.RemoteTrack, error) {
	rows, err := r.o.store.ListTrackMatches(r.job.ID)
	if err != nil {
		return nil, err
	}
	r.tracks = deref(rows)
	if r.job.Status != models.JobPending && r.job.TracksTotal > 0 && len(r.tracks) >= r.job.TracksTotal {
		return nil, nil
	}

	if r.job.Status == models.JobPending {
		if err := r.advance(models.JobFetching); err != nil {
			return nil, err
		}
	}
	sendProgress(r.progress, fetchPlaylistUpdate(r.job.ID, r.playlist.Ref))

	remote, err := r.o.fetcher.FetchRemotePlaylist(ctx, r.playlist.Ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fetchFailure{err: err}
	}
	sendProgress(r.progress, foundPlaylistUpdate(r.job.ID, remote))
	r.logger.Info("fetched playlist", "name", remote.Name, "tracks", len(remote.Tracks))

	r.job.TracksTotal = len(remote.Tracks)
	return remote.Tracks, nil
}

// match resolves every track in playlist order. Tracks are created as they are first processed;
// on resume only unresolved tracks without an assigned download are matched again.
func (r *jobRun) match(ctx context.Context, remote []models.RemoteTrack) error {
	if r.job.Status == models.JobFetching {
		if err := r.advance(models.JobMatching); err != nil {
			return err
		}
	}

	byPosition := make(map[int]int, len(r.tracks))
	for i, m := range r.tracks {
		byPosition[m.Position] = i
	}

	total := max(len(remote), len(r.tracks))
	for pos := 0; pos < total; pos++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if i, ok := byPosition[pos]; ok {
			m := r.tracks[i]
			if m.Status != models.TrackUnresolved {
				continue
			}
			lib, found := r.o.matcher.Match(ctx, m.Track())
			if err := ctx.Err(); err != nil {
				return err
			}
			if found {
				next, err := m.Found(lib.ID, r.o.opts.Now())
				if err != nil {
					return err
				}
				if err := r.setTrack(i, next); err != nil {
					return err
				}
			}
			sendProgress(r.progress, matchTrackUpdate(r.job.ID, pos+1, total, r.tracks[i]))
			continue
		}

		if pos >= len(remote) {
			continue
		}
		m := models.NewTrackMatch(r.job.ID, pos, remote[pos], r.o.opts.Now())
		lib, found := r.o.matcher.Match(ctx, remote[pos])
		if err := ctx.Err(); err != nil {
			return err
		}
		if found {
			next, err := m.Found(lib.ID, r.o.opts.Now())
			if err != nil {
				return err
			}
			m = next
		}
		if err := r.o.store.CreateTrackMatch(&m); err != nil {
			return err
		}
		r.tracks = append(r.tracks, m)
		sendProgress(r.progress, matchTrackUpdate(r.job.ID, pos+1, total, m))
	}

	slices.SortFunc(r.tracks, func(a, b models.TrackMatch) int { return a.Position - b.Position })
	r.logger.Info("matched tracks", "found", models.CountTracks(r.tracks).Found, "total", len(r.tracks))
	return nil
}

// download resolves missing tracks to catalog albums and downloads each album once with a
// fixed-size worker pool. Skipped when every track is resolved.
func (r *jobRun) download(ctx context.Context) error {
	var unassigned []int
	pending := false
	for i, m := range r.tracks {
		if m.Status.Terminal() {
			continue
		}
		pending = true
		if m.Status == models.TrackUnresolved {
			unassigned = append(unassigned, i)
		}
	}
	if !pending {
		return nil
	}
	if r.job.Status == models.JobMatching {
		if err := r.advance(models.JobDownloading); err != nil {
			return err
		}
	}

	existing, err := r.o.store.ListDownloads(map[string]any{"job_id": r.job.ID})
	if err != nil {
		return err
	}
	byURL := make(map[string]string, len(existing))
	for _, d := range existing {
		r.requests[d.ID] = *d
		byURL[d.AlbumURL] = d.ID
	}

	for step, i := range unassigned {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.resolve(ctx, step+1, len(unassigned), i, byURL); err != nil {
			return err
		}
	}

	if err := r.runDownloads(ctx); err != nil {
		return err
	}
	return r.collate()
}

// resolve finds the album for track i and assigns it to the job's request for that album,
// creating the request when it is the first track to need it.
func (r *jobRun) resolve(ctx context.Context, step, total, i int, byURL map[string]string) error {
	m := r.tracks[i]
	now := r.o.opts.Now()

	album, err := r.o.resolver.Resolve(ctx, m.Track())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		sendProgress(r.progress, resolveTrackUpdate(r.job.ID, step, total, m, nil))
		r.logger.Info("track not found on catalog", "title", m.Title, "artist", m.Artist, "reason", err)
		next, err := m.NotFound(err.Error(), now)
		if err != nil {
			return err
		}
		return r.setTrack(i, next)
	}
	sendProgress(r.progress, resolveTrackUpdate(r.job.ID, step, total, m, album))

	id, ok := byURL[album.URL]
	if !ok {
		req := models.NewAlbumDownloadRequest(m, *album, r.o.opts.MaxAttempts, now)
		if err := r.o.store.CreateDownload(&req); err != nil {
			return err
		}
		r.requests[req.ID] = req
		byURL[req.AlbumURL] = req.ID
		id = req.ID
	}

	next, err := m.Downloading(id, album.URL, now)
	if err != nil {
		return err
	}
	return r.setTrack(i, next)
}

type downloadEvent struct {
	req       models.AlbumDownloadRequest
	submitted bool
	err       error
}

// runDownloads processes every non-terminal request that still has waiting tracks.
//
// Workers report submissions and outcomes on one channel; this goroutine applies the track
// transitions so track state has a single writer.
func (r *jobRun) runDownloads(ctx context.Context) error {
	groups := r.groups()
	var work []models.AlbumDownloadRequest
	for id, req := range r.requests {
		if !req.Status.Terminal() && len(groups[id]) > 0 {
			work = append(work, req)
		}
	}
	if len(work) == 0 {
		return nil
	}
	slices.SortFunc(work, func(a, b models.AlbumDownloadRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })

	jobs := make(chan models.AlbumDownloadRequest, len(work))
	events := make(chan downloadEvent, len(work))

	var wg sync.WaitGroup
	for i := 0; i < min(r.o.opts.Workers, len(work)); i++ {
		wg.Add(1)
		go r.downloadWorker(ctx, &wg, jobs, events)
	}
	for _, req := range work {
		jobs <- req
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(events)
	}()

	var storeErr error
	completed := 0
	for ev := range events {
		r.requests[ev.req.ID] = ev.req
		if storeErr != nil {
			continue
		}

		if ev.submitted {
			sendProgress(r.progress, submittedUpdate(r.job.ID, len(work), ev.req))
			continue
		}

		completed++
		sendProgress(r.progress, downloadUpdate(r.job.ID, completed, len(work), ev.req))
		if ev.err != nil && ctx.Err() != nil {
			// Left in flight; the fetch service finishes it without us.
			continue
		}
		if ev.req.Status != models.DownloadSucceeded {
			cause := ev.err
			if cause == nil {
				cause = fmt.Errorf("%w: %s", shared.ErrDownloadFailed, ev.req.LastError)
			}
			storeErr = r.markErrored(groups[ev.req.ID], cause, ev.req.Attempts)
		}
	}

	if storeErr != nil {
		return storeErr
	}
	return ctx.Err()
}

// downloadWorker is a worker goroutine that downloads requests from the jobs channel.
func (r *jobRun) downloadWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan models.AlbumDownloadRequest,
	events chan<- downloadEvent,
) {
	defer wg.Done()

	for req := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		onSubmit := func(submitted models.AlbumDownloadRequest) {
			events <- downloadEvent{req: submitted, submitted: true}
		}
		final, err := r.o.downloads.Download(ctx, req, onSubmit)
		events <- downloadEvent{req: final, err: err}
	}
}

// groups maps request ids to the indexes of the tracks waiting on them.
func (r *jobRun) groups() map[string][]int {
	groups := make(map[string][]int)
	for i, m := range r.tracks {
		if !m.Status.Terminal() && m.DownloadID != "" {
			groups[m.DownloadID] = append(groups[m.DownloadID], i)
		}
	}
	return groups
}

func (r *jobRun) markErrored(tracks []int, cause error, retries int) error {
	for _, i := range tracks {
		m := r.tracks[i]
		if m.Status.Terminal() {
			continue
		}
		next, err := m.Errored(cause, retries, r.o.opts.Now())
		if err != nil {
			return err
		}
		if err := r.setTrack(i, next); err != nil {
			return err
		}
	}
	return nil
}

// collate errors tracks whose request failed without passing through the worker pool, as
// happens on resume. Tracks of succeeded requests stay downloading until the re-match.
func (r *jobRun) collate() error {
	for id, tracks := range r.groups() {
		req, ok := r.requests[id]
		if !ok || req.Status != models.DownloadFailed {
			continue
		}
		if err := r.markErrored(tracks, fmt.Errorf("%w: %s", shared.ErrDownloadFailed, req.LastError), req.Attempts); err != nil {
			return err
		}
	}
	return nil
}

// finalize refreshes the library once, re-matches tracks whose download succeeded, writes the
// destination playlist and completes the job.
func (r *jobRun) finalize(ctx context.Context) error {
	if err := r.advance(models.JobFinalizing); err != nil {
		return err
	}

	var rematch []int
	var stranded []int
	for i, m := range r.tracks {
		switch {
		case m.Status == models.TrackDownloading && r.requests[m.DownloadID].Status == models.DownloadSucceeded:
			rematch = append(rematch, i)
		case !m.Status.Terminal():
			stranded = append(stranded, i)
		}
	}
	if err := r.markErrored(stranded, fmt.Errorf("%w: download did not finish", shared.ErrDownloadFailed), 0); err != nil {
		return err
	}

	if len(rematch) > 0 {
		if err := r.rematch(ctx, rematch); err != nil {
			return err
		}
	}

	if err := r.materialize(ctx); err != nil {
		return err
	}

	now := r.o.opts.Now()
	done, err := r.job.Complete(models.CountTracks(r.tracks), now)
	if err != nil {
		return err
	}
	if err := r.o.store.UpdateJob(&done); err != nil {
		return err
	}
	r.job = done

	if err := r.o.store.MarkPlaylistSynced(r.playlist.ID, now); err != nil {
		r.logger.Error("failed to record playlist sync time", "error", err)
	}
	r.logger.Info("sync job completed",
		"found", done.Counters.Found, "downloaded", done.Counters.Downloaded,
		"not_found", done.Counters.NotFound, "errored", done.Counters.Errored)
	return nil
}

func (r *jobRun) rematch(ctx context.Context, tracks []int) error {
	sendProgress(r.progress, refreshUpdate(r.job.ID))
	if err := r.o.library.RefreshLibrary(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("library refresh failed, re-matching anyway", "error", err)
	}
	if r.o.opts.RefreshSettle > 0 {
		if err := r.o.opts.Sleep(ctx, r.o.opts.RefreshSettle); err != nil {
			return err
		}
	}

	for step, i := range tracks {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := r.tracks[i]
		lib, found := r.o.matcher.Match(ctx, m.Track())
		if err := ctx.Err(); err != nil {
			return err
		}

		var next models.TrackMatch
		var err error
		if found {
			next, err = m.Downloaded(lib.ID, r.o.opts.Now())
		} else {
			r.logger.Warn("album downloaded but track not indexed by library",
				"title", m.Title, "artist", m.Artist, "album_url", m.AlbumURL)
			cause := fmt.Errorf("%w: %s - %s", shared.ErrNotIndexed, m.Artist, m.Title)
			next, err = m.Errored(cause, r.requests[m.DownloadID].Attempts, r.o.opts.Now())
		}
		if err != nil {
			return err
		}
		if err := r.setTrack(i, next); err != nil {
			return err
		}
		sendProgress(r.progress, rematchUpdate(r.job.ID, step+1, len(tracks), next))
	}
	return nil
}

// materialize writes the found and downloaded tracks, in playlist order, to the destination
// playlist. A failure is recorded on the job and does not fail it.
func (r *jobRun) materialize(ctx context.Context) error {
	var ids []string
	for _, m := range r.tracks {
		if m.Status.InPlaylist() && m.LibraryID != "" {
			ids = append(ids, m.LibraryID)
		}
	}

	sendProgress(r.progress, materializeUpdate(r.job.ID, r.playlist.Name, len(ids)))
	key, err := r.o.library.MaterializePlaylist(ctx, r.playlist.Name, ids)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("failed to write destination playlist", "playlist", r.playlist.Name, "error", err)
		r.job.Error = "materialize playlist: " + err.Error()
		return nil
	}
	r.job.DestinationKey = key
	return nil
}

func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out
}
