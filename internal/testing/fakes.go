package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

// FakeFetcher serves remote playlists from memory.
type FakeFetcher struct {
	mu        sync.Mutex
	Playlists map[string]*models.RemotePlaylist
	Err       error
	calls     int
}

func (f *FakeFetcher) FetchRemotePlaylist(ctx context.Context, ref string) (*models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.Playlists[ref]
	if !ok {
		return nil, fmt.Errorf("playlist %s not found", ref)
	}
	cp := *p
	cp.Tracks = slices.Clone(p.Tracks)
	return &cp, nil
}

func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeLibrary is an in-memory media library.
//
// Tracks in OnRefresh become searchable after the first RefreshLibrary call, the way a scan
// picks up freshly downloaded albums.
type FakeLibrary struct {
	mu             sync.Mutex
	Tracks         []models.LibraryTrack
	OnRefresh      []models.LibraryTrack
	RefreshErr     error
	MaterializeErr error
	Materialized   map[string][]string
	refreshes      int
	searches       int
}

// SearchLibrary returns every track carrying the query's recording id, or whose normalized title
// contains the query title or shares a word with it. Plex title filters match substrings too.
func (f *FakeLibrary) SearchLibrary(ctx context.Context, track models.RemoteTrack) []models.LibraryTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++

	title := shared.NormalizeName(track.Title)
	want := strings.Fields(title)
	var found []models.LibraryTrack
	for _, t := range f.Tracks {
		if slices.Contains(t.ExternalIDs, track.ExternalID) && track.ExternalID != "" {
			found = append(found, t)
			continue
		}
		candidate := shared.NormalizeName(t.Title)
		if title != "" && strings.Contains(candidate, title) {
			found = append(found, t)
			continue
		}
		for _, w := range strings.Fields(candidate) {
			if slices.Contains(want, w) {
				found = append(found, t)
				break
			}
		}
	}
	return found
}

func (f *FakeLibrary) RefreshLibrary(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.RefreshErr != nil {
		return f.RefreshErr
	}
	f.Tracks = append(f.Tracks, f.OnRefresh...)
	f.OnRefresh = nil
	return nil
}

func (f *FakeLibrary) MaterializePlaylist(ctx context.Context, title string, trackIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MaterializeErr != nil {
		return "", f.MaterializeErr
	}
	if f.Materialized == nil {
		f.Materialized = map[string][]string{}
	}
	f.Materialized[title] = slices.Clone(trackIDs)
	return "pl-" + title, nil
}

func (f *FakeLibrary) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *FakeLibrary) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// Playlist returns the materialized track ids for title and whether it exists.
func (f *FakeLibrary) Playlist(title string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.Materialized[title]
	return ids, ok
}

// FakeCatalog answers catalog searches from maps keyed by the exact query.
type FakeCatalog struct {
	mu           sync.Mutex
	Albums       map[string][]models.CatalogAlbum
	Songs        map[string][]models.CatalogSong
	Artists      map[string][]models.CatalogArtist
	ArtistAlbum  map[string][]models.CatalogAlbum
	AlbumDetails map[string]models.CatalogAlbum
	Err          error
	Queries      []string
}

func (c *FakeCatalog) record(kind, q string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, kind+":"+q)
	return c.Err
}

func (c *FakeCatalog) SearchAlbums(ctx context.Context, q string) ([]models.CatalogAlbum, error) {
	if err := c.record("albums", q); err != nil {
		return nil, err
	}
	return c.Albums[q], nil
}

func (c *FakeCatalog) SearchSongs(ctx context.Context, q string) ([]models.CatalogSong, error) {
	if err := c.record("songs", q); err != nil {
		return nil, err
	}
	return c.Songs[q], nil
}

func (c *FakeCatalog) SearchArtists(ctx context.Context, q string) ([]models.CatalogArtist, error) {
	if err := c.record("artists", q); err != nil {
		return nil, err
	}
	return c.Artists[q], nil
}

func (c *FakeCatalog) ArtistAlbums(ctx context.Context, artistID string) ([]models.CatalogAlbum, error) {
	if err := c.record("artist", artistID); err != nil {
		return nil, err
	}
	return c.ArtistAlbum[artistID], nil
}

func (c *FakeCatalog) Album(ctx context.Context, browseID string) (*models.CatalogAlbum, error) {
	if err := c.record("album", browseID); err != nil {
		return nil, err
	}
	album, ok := c.AlbumDetails[browseID]
	if !ok {
		return nil, fmt.Errorf("album %s not found", browseID)
	}
	return &album, nil
}

// Calls returns the number of catalog requests made.
func (c *FakeCatalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Queries)
}

// FakeDownloader scripts fetch service jobs per album URL.
//
// Scripts[url][n] is the sequence of poll results for the n-th submission of url; the last
// state of a sequence repeats. Without a script every job succeeds on the first poll.
type FakeDownloader struct {
	mu          sync.Mutex
	Scripts     map[string][][]models.DownloadState
	SubmitErr   error
	PollErr     error
	Submissions []string
	handles     map[string]*fakeJob
}

type fakeJob struct {
	states []models.DownloadState
	polls  int
}

func (d *FakeDownloader) SubmitDownload(ctx context.Context, albumURL string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SubmitErr != nil {
		return "", d.SubmitErr
	}

	n := 0
	for _, u := range d.Submissions {
		if u == albumURL {
			n++
		}
	}
	d.Submissions = append(d.Submissions, albumURL)

	states := []models.DownloadState{{Status: models.DownloadSucceeded, Progress: 1}}
	if script := d.Scripts[albumURL]; len(script) > 0 {
		states = script[min(n, len(script)-1)]
	}
	if d.handles == nil {
		d.handles = map[string]*fakeJob{}
	}
	handle := fmt.Sprintf("h-%d", len(d.Submissions))
	d.handles[handle] = &fakeJob{states: states}
	return handle, nil
}

func (d *FakeDownloader) PollDownload(ctx context.Context, handle string) (models.DownloadState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PollErr != nil {
		return models.DownloadState{}, d.PollErr
	}
	job, ok := d.handles[handle]
	if !ok {
		return models.DownloadState{Status: models.DownloadFailed, Error: "unknown handle"}, nil
	}
	state := job.states[min(job.polls, len(job.states)-1)]
	job.polls++
	return state, nil
}

// SubmissionCount returns how many times albumURL was submitted.
func (d *FakeDownloader) SubmissionCount(albumURL string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, u := range d.Submissions {
		if u == albumURL {
			n++
		}
	}
	return n
}

func (d *FakeDownloader) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Submissions)
}
