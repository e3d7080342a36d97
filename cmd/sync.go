package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamknife/internal/formatter"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/queue"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/tasks"
	"github.com/desertthunder/jamknife/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultWatchInterval = time.Second

// SyncRun reserves a job for the playlist and runs it in the foreground, printing progress and a final report.
//
// A job that ends as failed is reported and returned as an error so the exit status reflects it.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireServices(); err != nil {
		return err
	}
	playlist, err := r.findPlaylist(cmd.StringArg("playlist"))
	if err != nil {
		return err
	}
	engine, err := r.orchestrator()
	if err != nil {
		return err
	}

	asJSON := cmd.Bool("json")
	if !asJSON {
		r.writePlain("Syncing %s...\n\n", playlist.Name)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if asJSON {
				continue
			}
			r.printProgress(update)
		}
	}()

	job, err := engine.Run(ctx, playlist.ID, progressCh)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	report, err := r.report(job.ID)
	if err != nil {
		return err
	}

	if asJSON {
		if err := r.writeJSON(report, true); err != nil {
			return err
		}
	} else {
		text, err := formatter.ExportToText(report)
		if err != nil {
			return err
		}
		r.writePlain("\n")
		r.writePlainHeader("Sync Finished")
		r.writePlain("%s", text)
	}

	if job.Status == models.JobFailed {
		return fmt.Errorf("sync job %s failed (%s): %s", job.ID, job.ErrorCategory, job.Error)
	}
	return nil
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchPlaylist:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.MatchTracks, tasks.ResolveAlbums, tasks.RematchTracks:
		if update.Step == 1 {
			r.writePlain("\n🔍 %s\n", update.Phase)
		}
		r.writePlain("   %s\n", update.Message)
	case tasks.DownloadAlbums:
		r.writePlain("⬇  %s\n", update.Message)
	case tasks.RefreshLibrary, tasks.MaterializePlaylist:
		r.writePlain("\n📝 %s\n", update.Message)
	case tasks.JobFinished:
		r.writePlain("\n%s\n", update.Message)
	}
}

// SyncStart reserves a job and queues it for the server's worker.
func (r *Runner) SyncStart(ctx context.Context, cmd *cli.Command) error {
	playlist, err := r.findPlaylist(cmd.StringArg("playlist"))
	if err != nil {
		return err
	}
	engine, err := r.orchestrator()
	if err != nil {
		return err
	}

	job, err := engine.StartSync(ctx, playlist.ID)
	if err != nil {
		var conflict *shared.ConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("%w; follow it with 'jamknife sync watch %s'", err, conflict.ActiveJobID)
		}
		return err
	}

	q, err := queue.Open(queue.Path(r.config.Database.Path), r.config.Queue, engine, r.store, shared.WithLogger(r.logger, "component", "queue"))
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Dispatch(ctx, job.ID); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}
	r.writePlain("✓ Queued sync job %s for %s\n", job.ID, playlist.Name)
	r.writePlain("It runs when 'jamknife serve' is up; follow it with 'jamknife sync watch %s'\n", job.ID)
	return nil
}

// SyncStatus prints a job and its counters.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	job, err := store.GetJob(cmd.StringArg("job"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}

	r.writePlainHeader(fmt.Sprintf("Sync job %s", job.ID))
	r.writePlain("Playlist:   %s\n", job.PlaylistID)
	r.writePlain("Status:     %s\n", job.Status)
	if job.ErrorCategory != models.CategoryNone {
		r.writePlain("Error:      %s: %s\n", job.ErrorCategory, job.Error)
	}
	r.writePlain("Created:    %s\n", job.CreatedAt.Local().Format(time.DateTime))
	if job.StartedAt != nil {
		r.writePlain("Started:    %s\n", job.StartedAt.Local().Format(time.DateTime))
	}
	if job.FinishedAt != nil {
		r.writePlain("Finished:   %s\n", job.FinishedAt.Local().Format(time.DateTime))
	}
	c := job.Counters
	r.writePlain("Tracks:     %d (found %d, downloaded %d, not found %d, errored %d)\n",
		job.TracksTotal, c.Found, c.Downloaded, c.NotFound, c.Errored)
	return nil
}

// SyncList prints jobs, newest first.
func (r *Runner) SyncList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if key := cmd.String("playlist"); key != "" {
		playlist, err := r.findPlaylist(key)
		if err != nil {
			return err
		}
		criteria["playlist_id"] = playlist.ID
	}
	if s := cmd.String("status"); s != "" {
		status := models.JobStatus(strings.ToLower(s))
		if !status.Valid() {
			return fmt.Errorf("%w: unknown job status %q", shared.ErrInvalidFlag, s)
		}
		criteria["status"] = status
	}

	jobs, err := store.ListJobs(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if jobs == nil {
			jobs = []*models.SyncJob{}
		}
		return r.writeJSON(jobs, true)
	}

	if len(jobs) == 0 {
		return r.writePlain("No sync jobs.\n")
	}
	for _, j := range jobs {
		c := j.Counters
		r.writePlain("%s  %-11s %s  %d tracks  %d/%d/%d/%d\n",
			j.ID, j.Status, j.CreatedAt.Local().Format(time.DateTime), j.TracksTotal,
			c.Found, c.Downloaded, c.NotFound, c.Errored)
	}
	return nil
}

// SyncCancel cancels a job. A job running in another process is failed in the store and its
// worker stops, without writing the job again, at its next phase change.
func (r *Runner) SyncCancel(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.orchestrator()
	if err != nil {
		return err
	}

	id := cmd.StringArg("job")
	if err := engine.Cancel(id); err != nil {
		return err
	}
	return r.writePlain("✓ Cancelled sync job %s\n", id)
}

// SyncReport renders a job report to stdout or a file.
func (r *Runner) SyncReport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	report, err := r.report(cmd.StringArg("job"))
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteReport(report, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", written)
		return r.writePlain("✓ Report saved to %s\n", written)
	}

	data, err := formatter.Render(report, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// report loads a job with its playlist, tracks and downloads.
func (r *Runner) report(jobID string) (*formatter.Report, error) {
	store, err := r.openStore()
	if err != nil {
		return nil, err
	}

	job, err := store.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	playlist, err := store.GetPlaylist(job.PlaylistID)
	if err != nil && !errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, err
	}

	tracks, err := store.ListTrackMatches(job.ID)
	if err != nil {
		return nil, err
	}
	downloads, err := store.ListDownloads(map[string]any{"job_id": job.ID})
	if err != nil {
		return nil, err
	}

	return &formatter.Report{Playlist: playlist, Job: job, Tracks: tracks, Downloads: downloads}, nil
}

// SyncWatch follows a job in the terminal UI until it reaches a terminal state.
func (r *Runner) SyncWatch(ctx context.Context, cmd *cli.Command) error {
	if err := r.useFileLogger(); err != nil {
		return err
	}
	engine, err := r.orchestrator()
	if err != nil {
		return err
	}

	id := cmd.StringArg("job")
	if _, err := engine.GetSyncJob(id); err != nil {
		return err
	}

	interval := cmd.Duration("interval")
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	model := ui.NewWatchModel(ctx, engine, id, interval)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return model.Err()
}
