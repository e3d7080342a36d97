package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	ConfirmView
	SyncView
	ResultView
)

const (
	logLines = 6
	barWidth = 40
)

// Playlists lists stored playlists.
type Playlists interface {
	List(criteria map[string]any) ([]*models.Playlist, error)
}

// Syncer runs, inspects and cancels sync jobs.
type Syncer interface {
	Run(ctx context.Context, playlistID string, progress chan<- tasks.ProgressUpdate) (*models.SyncJob, error)
	GetSyncJob(id string) (*models.SyncJob, error)
	TrackMatches(jobID string) ([]*models.TrackMatch, error)
	Cancel(jobID string) error
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	playlists    Playlists
	syncer       Syncer
	watch        bool
	pollEvery    time.Duration
	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	selected     *models.Playlist
	jobID        string
	progressChan chan tasks.ProgressUpdate
	done         chan jobState
	progress     tasks.ProgressUpdate
	log          []string
	spinner      spinner.Model
	job          *models.SyncJob
	tracks       []*models.TrackMatch
	notice       string
	err          error
	help         help.Model
	keys         keyMap
}

func newModel(ctx context.Context, syncer Syncer) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.bar
	return &Model{
		ctx:          ctx,
		syncer:       syncer,
		playlistList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		trackList:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner:      s,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// NewModel creates an interactive model that lists enabled playlists and runs a sync for the one selected.
func NewModel(ctx context.Context, playlists Playlists, syncer Syncer) *Model {
	m := newModel(ctx, syncer)
	m.view = PlaylistListView
	m.playlists = playlists
	return m
}

// NewWatchModel creates a model that follows an existing job by polling its stored state every interval.
func NewWatchModel(ctx context.Context, syncer Syncer, jobID string, every time.Duration) *Model {
	m := newModel(ctx, syncer)
	m.view = SyncView
	m.watch = true
	m.jobID = jobID
	m.pollEvery = max(every, 100*time.Millisecond)
	return m
}

// Job returns the last known state of the job, if any.
func (m *Model) Job() *models.SyncJob { return m.job }

// Err returns the error that stopped the model, if any.
func (m *Model) Err() error { return m.err }

// Init fetches playlists in interactive mode and the job state in watch mode.
func (m *Model) Init() tea.Cmd {
	if m.watch {
		return tea.Batch(m.spinner.Tick, m.pollJob())
	}
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(struct {
			playlists []*models.Playlist
			err       error
		})
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = "Enabled Playlists"
		m.playlistList.SetSize(m.width-4, m.height-8)
		return m, nil

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		if update.JobID != "" {
			m.jobID = update.JobID
		}
		if update.Message != "" {
			m.log = append(m.log, update.Message)
			if len(m.log) > logLines {
				m.log = m.log[len(m.log)-logLines:]
			}
		}
		return m, m.waitForProgress()

	case MsgSyncComplete:
		state := msg.data.(jobState)
		m.progressChan = nil
		m.done = nil
		m.showResult(state)
		return m, nil

	case MsgJobPolled:
		state := msg.data.(jobState)
		if state.err != nil {
			m.err = state.err
			return m, tea.Quit
		}
		m.job = state.job
		m.tracks = state.tracks
		if state.job.Status.Terminal() {
			m.showResult(state)
			return m, nil
		}
		return m, m.schedulePoll()

	case MsgCancelSent:
		if err, _ := msg.data.(error); err != nil {
			m.notice = fmt.Sprintf("Cancel failed: %v", err)
		} else {
			m.notice = "Cancellation requested..."
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) showResult(state jobState) {
	m.job = state.job
	m.tracks = state.tracks
	m.err = state.err
	items := make([]list.Item, len(state.tracks))
	for i, t := range state.tracks {
		items[i] = trackItem{track: t}
	}
	m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = "Tracks"
	m.trackList.SetSize(m.width-4, m.height-10)
	m.view = ResultView
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			m.selected = pl.playlist
			m.view = ConfirmView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		m.selected = nil
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, tea.Batch(m.spinner.Tick, m.startSync())
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel):
		if m.jobID == "" {
			return m, nil
		}
		return m, m.cancelJob(m.jobID)
	case key.Matches(msg, m.keys.quit):
		// Leaving an interactive sync would orphan the job; cancel it and wait for the result.
		if !m.watch && m.progressChan != nil && m.jobID != "" {
			return m, m.cancelJob(m.jobID)
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart) && !m.watch:
		m.view = PlaylistListView
		m.selected = nil
		m.job = nil
		m.tracks = nil
		m.jobID = ""
		m.log = nil
		m.notice = ""
		m.progress = tasks.ProgressUpdate{}
		m.err = nil
		return m, m.fetchPlaylists()
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case ResultView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.playlists.List(map[string]any{"enabled": true})
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) startSync() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan jobState, 1)
	m.progressChan = progress
	m.done = done

	playlistID := m.selected.ID
	go func() {
		job, err := m.syncer.Run(m.ctx, playlistID, progress)
		var tracks []*models.TrackMatch
		if err == nil && job != nil {
			tracks, err = m.syncer.TrackMatches(job.ID)
		}
		done <- jobState{job, tracks, err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	return func() tea.Msg {
		if progress == nil {
			return syncCompleteMsg(nil, nil, errors.New("no sync in progress"))
		}

		update, ok := <-progress
		if !ok {
			state := <-done
			return syncCompleteMsg(state.job, state.tracks, state.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) pollJob() tea.Cmd {
	return func() tea.Msg {
		job, err := m.syncer.GetSyncJob(m.jobID)
		if err != nil {
			return jobPolledMsg(nil, nil, err)
		}
		tracks, err := m.syncer.TrackMatches(m.jobID)
		return jobPolledMsg(job, tracks, err)
	}
}

func (m *Model) schedulePoll() tea.Cmd {
	poll := m.pollJob()
	return tea.Tick(m.pollEvery, func(time.Time) tea.Msg { return poll() })
}

func (m *Model) cancelJob(id string) tea.Cmd {
	return func() tea.Msg {
		return cancelSentMsg(m.syncer.Cancel(id))
	}
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Sync '%s' now?", m.selected.Name))
	info := fmt.Sprintf("\nPlaylist: %s\nSource: %s\n", m.selected.Name, m.selected.Ref)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

// ratio is the completed fraction of the current phase, or of settled tracks when watching.
func (m *Model) ratio() float64 {
	if m.watch {
		if m.job == nil || m.job.TracksTotal == 0 {
			return 0
		}
		settled := 0
		for _, t := range m.tracks {
			if t.Status.Terminal() {
				settled++
			}
		}
		return float64(settled) / float64(m.job.TracksTotal)
	}
	if m.progress.Total == 0 {
		return 0
	}
	return min(float64(m.progress.Step)/float64(m.progress.Total), 1)
}

func (m *Model) phase() string {
	if m.watch {
		if m.job == nil {
			return "Loading job..."
		}
		return fmt.Sprintf("Job %s", m.job.Status)
	}
	switch m.progress.Phase {
	case tasks.FetchPlaylist:
		return "Fetching playlist..."
	case tasks.MatchTracks:
		return fmt.Sprintf("Matching tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ResolveAlbums:
		return fmt.Sprintf("Resolving albums (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.DownloadAlbums:
		return fmt.Sprintf("Downloading albums (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.RefreshLibrary:
		return "Refreshing library..."
	case tasks.RematchTracks:
		return fmt.Sprintf("Re-matching downloads (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.MaterializePlaylist:
		return "Writing playlist..."
	case tasks.JobFinished:
		return "Finishing..."
	default:
		return "Processing..."
	}
}

func renderBar(ratio float64) string {
	filled := int(ratio * barWidth)
	return styles.bar.Render(strings.Repeat("█", filled)) + styles.help.Render(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3.0f%%", ratio*100)
}

func (m *Model) renderSync() string {
	name := m.jobID
	if m.selected != nil {
		name = m.selected.Name
	}
	title := styles.title.Render(fmt.Sprintf("Syncing %s", name))

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n\n%s %s\n%s\n", title, m.spinner.View(), m.phase(), renderBar(m.ratio())))
	for _, line := range m.log {
		b.WriteString(styles.help.Render(line) + "\n")
	}
	if m.watch {
		for _, t := range m.tracks {
			if t.Status == models.TrackDownloading {
				b.WriteString(styles.warn.Render(fmt.Sprintf("↓ %s - %s", t.Artist, t.Title)) + "\n")
			}
		}
	}
	if m.notice != "" {
		b.WriteString("\n" + styles.warn.Render(m.notice) + "\n")
	}

	helpKeys := []key.Binding{m.keys.cancel, m.keys.quit}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.quit}
	if !m.watch {
		helpKeys = []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.job == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	var title string
	if m.job.Status == models.JobCompleted {
		title = styles.ok.Render("✓ Sync Complete!")
	} else {
		title = styles.err.Render(fmt.Sprintf("✗ Sync %s (%s)", m.job.Status, m.job.ErrorCategory))
	}

	c := m.job.Counters
	info := fmt.Sprintf("\nJob: %s\nTracks: %d\nFound: %d  Downloaded: %d  %s  %s",
		m.job.ID, m.job.TracksTotal, c.Found, c.Downloaded,
		styles.warn.Render(fmt.Sprintf("Not found: %d", c.NotFound)),
		styles.err.Render(fmt.Sprintf("Errored: %d", c.Errored)),
	)
	if m.job.Error != "" {
		info += "\n" + styles.err.Render(m.job.Error)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.trackList.View(), helpView)
}
