package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/urfave/cli/v3"
)

var downloadStatuses = []models.DownloadStatus{
	models.DownloadQueued, models.DownloadRunning, models.DownloadSucceeded, models.DownloadFailed,
}

// DownloadsList prints album download requests, optionally for one job or status.
func (r *Runner) DownloadsList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if job := cmd.String("job"); job != "" {
		criteria["job_id"] = job
	}
	if s := cmd.String("status"); s != "" {
		status := models.DownloadStatus(strings.ToLower(s))
		if !slices.Contains(downloadStatuses, status) {
			return fmt.Errorf("%w: unknown download status %q", shared.ErrInvalidFlag, s)
		}
		criteria["status"] = status
	}

	downloads, err := store.ListDownloads(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if downloads == nil {
			downloads = []*models.AlbumDownloadRequest{}
		}
		return r.writeJSON(downloads, true)
	}

	if len(downloads) == 0 {
		return r.writePlain("No download requests.\n")
	}
	for _, d := range downloads {
		r.writePlain("%s  %-9s %d/%d  %s - %s\n", d.ID, d.Status, d.Attempts, d.MaxAttempts, d.Artist, d.AlbumTitle)
		if d.LastError != "" {
			r.writePlain("    %s\n", d.LastError)
		}
	}
	return nil
}

