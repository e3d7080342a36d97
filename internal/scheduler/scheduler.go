// package scheduler starts sync jobs for playlists on their configured day and time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/robfig/cron/v3"
)

// Playlists lists registered playlists.
type Playlists interface {
	List(criteria map[string]any) ([]*models.Playlist, error)
}

// Syncer reserves sync jobs.
type Syncer interface {
	StartSync(ctx context.Context, playlistID string) (*models.SyncJob, error)
}

// Dispatcher hands a reserved job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// Scheduler keeps one cron entry per enabled, scheduled playlist and an optional discovery entry.
type Scheduler struct {
	playlists Playlists
	syncer    Syncer
	dispatch  Dispatcher
	logger    *log.Logger

	discoverSpec string
	discover     func(ctx context.Context) error

	mu         sync.RWMutex
	cron       *cron.Cron
	entries    map[string]cron.EntryID
	discoverID cron.EntryID
	running    bool
	ctx        context.Context
}

// New creates a Scheduler evaluating schedules in loc.
func New(playlists Playlists, syncer Syncer, dispatch Dispatcher, loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger}
	return &Scheduler{
		playlists: playlists,
		syncer:    syncer,
		dispatch:  dispatch,
		logger:    logger,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Spec returns the cron expression for a playlist schedule.
func Spec(day, at string) (string, error) {
	if day == "" || at == "" {
		return "", fmt.Errorf("%w: playlist has no schedule", shared.ErrInvalidInput)
	}
	if err := models.ValidateSchedule(day, at); err != nil {
		return "", err
	}

	hour, minute, _ := strings.Cut(at, ":")
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)

	dow := "*"
	if wd := models.Weekday(day); wd >= 0 {
		dow = strconv.Itoa(wd)
	}
	return fmt.Sprintf("%d %d * * %s", m, h, dow), nil
}

// Discover registers fn to run on the cron expression spec. An empty spec disables discovery.
// Must be called before Start.
func (s *Scheduler) Discover(spec string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverSpec = spec
	s.discover = fn
}

// Start loads the playlist schedules and starts the cron loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx = ctx

	if s.discover != nil && s.discoverSpec != "" {
		id, err := s.cron.AddFunc(s.discoverSpec, s.runDiscovery)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: discovery schedule %q: %v", shared.ErrInvalidConfig, s.discoverSpec, err)
		}
		s.discoverID = id
	}
	s.mu.Unlock()

	if err := s.Reload(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron.Start()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("scheduler started", "playlists", len(s.Scheduled()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the cron loop and waits for running triggers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Reload replaces the playlist entries with the current enabled, scheduled playlists.
// Playlists with a schedule that does not parse are logged and skipped.
func (s *Scheduler) Reload() error {
	playlists, err := s.playlists.List(map[string]any{"enabled": true, "scheduled": true})
	if err != nil {
		return fmt.Errorf("failed to list scheduled playlists: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}

	for _, p := range playlists {
		spec, err := Spec(p.SyncDay, p.SyncTime)
		if err != nil {
			s.logger.Warn("skipping playlist schedule", "playlist", p.Name, "error", err)
			continue
		}

		id := p.ID
		entry, err := s.cron.AddFunc(spec, func() { s.Trigger(s.context(), id) })
		if err != nil {
			s.logger.Warn("skipping playlist schedule", "playlist", p.Name, "spec", spec, "error", err)
			continue
		}
		s.entries[p.ID] = entry
		s.logger.Debug("scheduled playlist", "playlist", p.Name, "spec", spec)
	}
	return nil
}

// Trigger starts and dispatches a sync for the playlist. A playlist that is already syncing or
// was disabled since the last reload is skipped.
func (s *Scheduler) Trigger(ctx context.Context, playlistID string) {
	job, err := s.syncer.StartSync(ctx, playlistID)
	switch {
	case shared.IsConflict(err):
		s.logger.Info("scheduled sync skipped, playlist already syncing", "playlist", playlistID, "error", err)
		return
	case errors.Is(err, shared.ErrPlaylistDisabled):
		s.logger.Info("scheduled sync skipped, playlist disabled", "playlist", playlistID)
		return
	case err != nil:
		s.logger.Error("scheduled sync failed to start", "playlist", playlistID, "error", err)
		return
	}

	if err := s.dispatch.Dispatch(ctx, job.ID); err != nil {
		s.logger.Error("failed to dispatch scheduled sync", "job", job.ID, "error", err)
		return
	}
	s.logger.Info("scheduled sync dispatched", "playlist", playlistID, "job", job.ID)
}

// Next returns the next run time of the playlist's entry, or nil when it has none or the
// scheduler is not running.
func (s *Scheduler) Next(playlistID string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[playlistID]
	if !ok || !s.running {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// Scheduled returns the ids of playlists with an entry.
func (s *Scheduler) Scheduled() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) runDiscovery() {
	if err := s.discover(s.context()); err != nil {
		s.logger.Error("playlist discovery failed", "error", err)
		return
	}
	if err := s.Reload(); err != nil {
		s.logger.Error("failed to reload schedules after discovery", "error", err)
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// cronLogger adapts a charmbracelet logger to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
