package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

// PlaylistDiscoverer lists the generated playlists published for the configured user.
type PlaylistDiscoverer interface {
	DiscoverPlaylists(ctx context.Context) ([]models.RemotePlaylist, error)
}

// PlaylistRegistry stores the playlists that can be synced.
type PlaylistRegistry interface {
	GetByRef(ref string) (*models.Playlist, error)
	Create(playlist *models.Playlist) error
}

// Discovery registers daily and weekly playlists that are not tracked yet.
type Discovery struct {
	source   PlaylistDiscoverer
	registry PlaylistRegistry
	defaults shared.ScheduleConfig
	logger   *log.Logger
}

func NewDiscovery(source PlaylistDiscoverer, registry PlaylistRegistry, defaults shared.ScheduleConfig, logger *log.Logger) *Discovery {
	return &Discovery{source: source, registry: registry, defaults: defaults, logger: logger}
}

// Run fetches the created-for playlists and registers the new ones. Playlists that are neither
// daily nor weekly are ignored. Daily playlists get the configured daily time, weekly ones the
// configured day and time.
func (d *Discovery) Run(ctx context.Context) ([]*models.Playlist, error) {
	remote, err := d.source.DiscoverPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover playlists: %w", err)
	}

	var added []*models.Playlist
	for _, rp := range remote {
		kind := models.ClassifyPlaylist(rp.Name)
		if kind == models.PlaylistOther || rp.Ref == "" {
			continue
		}

		if _, err := d.registry.GetByRef(rp.Ref); err == nil {
			continue
		} else if !errors.Is(err, shared.ErrPlaylistNotFound) {
			return added, err
		}

		p := &models.Playlist{
			Ref:        rp.Ref,
			Name:       rp.Name,
			Creator:    rp.Creator,
			CreatedFor: rp.CreatedFor,
			Kind:       kind,
			Enabled:    d.defaults.EnableDiscovered,
		}
		d.schedule(p)

		if err := d.registry.Create(p); err != nil {
			return added, err
		}
		d.logger.Info("registered playlist", "name", p.Name, "kind", p.Kind, "ref", p.Ref)
		added = append(added, p)
	}
	return added, nil
}

func (d *Discovery) schedule(p *models.Playlist) {
	day, at := "", ""
	switch p.Kind {
	case models.PlaylistDaily:
		day, at = models.SyncDaily, d.defaults.DailyTime
	case models.PlaylistWeekly:
		day, at = d.defaults.WeeklyDay, d.defaults.WeeklyTime
	}
	if at == "" || models.ValidateSchedule(day, at) != nil {
		return
	}
	p.SyncDay, p.SyncTime = day, at
}
