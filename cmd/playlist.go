package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistAdd registers a ListenBrainz playlist, fetching its metadata when no name is given.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	ref := strings.TrimSpace(cmd.StringArg("ref"))
	if ref == "" {
		return fmt.Errorf("%w: playlist MBID", shared.ErrMissingArgument)
	}

	store, err := r.openStore()
	if err != nil {
		return err
	}

	playlist := models.Playlist{
		Ref:      ref,
		Name:     cmd.String("name"),
		Enabled:  !cmd.Bool("disabled"),
		SyncDay:  strings.ToLower(cmd.String("day")),
		SyncTime: cmd.String("time"),
	}
	if err := models.ValidateSchedule(playlist.SyncDay, playlist.SyncTime); err != nil {
		return err
	}

	if playlist.Name == "" {
		r.logger.Info("fetching playlist metadata", "ref", ref)
		remote, err := r.services().ListenBrainz.FetchRemotePlaylist(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to fetch playlist %s: %w", ref, err)
		}
		playlist.Name = remote.Name
		playlist.Creator = remote.Creator
		playlist.CreatedFor = remote.CreatedFor
	}

	if err := store.Playlists.Create(&playlist); err != nil {
		return err
	}

	r.logger.Info("playlist registered", "id", playlist.ID, "name", playlist.Name)
	r.writePlain("✓ Registered %s (%s)\n", playlist.Name, playlist.ID)
	if !playlist.Enabled {
		r.writePlain("Sync is disabled; run 'jamknife playlist enable %s' to enable it.\n", playlist.ID)
	}
	return nil
}

// PlaylistList prints registered playlists.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	criteria := map[string]any{}
	if cmd.Bool("enabled") {
		criteria["enabled"] = true
	}

	playlists, err := store.Playlists.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if playlists == nil {
			playlists = []*models.Playlist{}
		}
		return r.writeJSON(playlists, true)
	}

	if len(playlists) == 0 {
		r.writePlain("No playlists registered.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Playlists (%d)", len(playlists)))
	for _, p := range playlists {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		schedule := "unscheduled"
		if p.Scheduled() {
			schedule = fmt.Sprintf("%s at %s", p.SyncDay, p.SyncTime)
		}
		r.writePlain("%s  %-40s %-8s %-9s %s\n", p.ID, p.Name, p.Kind, state, schedule)
	}
	return nil
}

// PlaylistEnable enables sync for a playlist.
func (r *Runner) PlaylistEnable(ctx context.Context, cmd *cli.Command) error {
	return r.setEnabled(cmd.StringArg("playlist"), true)
}

// PlaylistDisable disables sync for a playlist.
func (r *Runner) PlaylistDisable(ctx context.Context, cmd *cli.Command) error {
	return r.setEnabled(cmd.StringArg("playlist"), false)
}

func (r *Runner) setEnabled(key string, enabled bool) error {
	playlist, err := r.findPlaylist(key)
	if err != nil {
		return err
	}

	playlist.Enabled = enabled
	if err := r.store.Playlists.Update(playlist); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	r.logger.Info("playlist updated", "id", playlist.ID, "enabled", enabled)
	return r.writePlain("✓ %s %s\n", playlist.Name, state)
}

// PlaylistSchedule sets or clears the sync schedule of a playlist.
func (r *Runner) PlaylistSchedule(ctx context.Context, cmd *cli.Command) error {
	playlist, err := r.findPlaylist(cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	if cmd.Bool("clear") {
		playlist.SyncDay, playlist.SyncTime = "", ""
	} else {
		day, at := strings.ToLower(cmd.String("day")), cmd.String("time")
		if day == "" || at == "" {
			return fmt.Errorf("%w: --day and --time, or --clear", shared.ErrMissingArgument)
		}
		playlist.SyncDay, playlist.SyncTime = day, at
	}

	if err := r.store.Playlists.Update(playlist); err != nil {
		return err
	}

	if !playlist.Scheduled() {
		return r.writePlain("✓ %s is no longer scheduled\n", playlist.Name)
	}
	return r.writePlain("✓ %s syncs %s at %s\n", playlist.Name, playlist.SyncDay, playlist.SyncTime)
}

// PlaylistRemove soft-deletes a playlist. Its job history is kept.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	playlist, err := r.findPlaylist(cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	if err := r.store.Playlists.Delete(playlist.ID); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s\n", playlist.Name)
}

// PlaylistDiscover registers the daily and weekly playlists ListenBrainz generated for the configured user.
func (r *Runner) PlaylistDiscover(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	discovery := tasks.NewDiscovery(
		r.services().ListenBrainz,
		store.Playlists,
		r.config.Schedule,
		shared.WithLogger(r.logger, "component", "discovery"),
	)

	added, err := discovery.Run(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if added == nil {
			added = []*models.Playlist{}
		}
		return r.writeJSON(added, true)
	}

	if len(added) == 0 {
		return r.writePlain("No new playlists found.\n")
	}
	r.writePlain("✓ Registered %d playlists:\n", len(added))
	for _, p := range added {
		r.writePlain("  - %s (%s)\n", p.Name, p.Kind)
	}
	return nil
}
