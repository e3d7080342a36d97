// Plex media library
//
// Uses the Plex Media Server HTTP API with JSON responses. Every request carries the
// X-Plex-Token header.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const plexTrackType = "10"

// PlexService searches, refreshes and writes playlists to one music library section.
type PlexService struct {
	api     *APIService
	library string
	logger  *log.Logger

	mu         sync.Mutex
	sectionKey string
	machineID  string
}

// NewPlexService creates a client for the named library section.
func NewPlexService(baseURL, token, library string, client *http.Client, logger *log.Logger) *PlexService {
	api := NewAPIService("Plex", baseURL, client)
	api.SetHeader("X-Plex-Token", token)
	api.SetHeader("X-Plex-Product", "jamknife")
	return &PlexService{api: api, library: library, logger: logger}
}

func (p *PlexService) Name() string {
	return "Plex"
}

type plexContainer struct {
	MediaContainer struct {
		MachineIdentifier string          `json:"machineIdentifier"`
		Directory         []plexDirectory `json:"Directory"`
		Metadata          []plexMetadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

type plexDirectory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type plexMetadata struct {
	RatingKey        string `json:"ratingKey"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parentTitle"`
	GrandparentTitle string `json:"grandparentTitle"`
	OriginalTitle    string `json:"originalTitle"`
	Smart            bool   `json:"smart"`
	Guid             []struct {
		ID string `json:"id"`
	} `json:"Guid"`
}

func (m plexMetadata) toTrack() models.LibraryTrack {
	artist := m.GrandparentTitle
	if m.OriginalTitle != "" {
		artist = m.OriginalTitle
	}
	track := models.LibraryTrack{ID: m.RatingKey, Title: m.Title, Artist: artist, Album: m.ParentTitle}
	for _, g := range m.Guid {
		if id, ok := strings.CutPrefix(g.ID, "mbid://"); ok {
			track.ExternalIDs = append(track.ExternalIDs, id)
		}
	}
	return track
}

// section resolves and caches the library section key.
func (p *PlexService) section(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sectionKey != "" {
		return p.sectionKey, nil
	}

	var resp plexContainer
	if err := p.api.doRequest(ctx, http.MethodGet, "/library/sections", nil, nil, &resp); err != nil {
		return "", err
	}
	for _, d := range resp.MediaContainer.Directory {
		if d.Type == "artist" && strings.EqualFold(d.Title, p.library) {
			p.sectionKey = d.Key
			return d.Key, nil
		}
	}
	return "", fmt.Errorf("%w: plex music library %q", shared.ErrInvalidConfig, p.library)
}

func (p *PlexService) machineIdentifier(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machineID != "" {
		return p.machineID, nil
	}

	var resp plexContainer
	if err := p.api.doRequest(ctx, http.MethodGet, "/identity", nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.MediaContainer.MachineIdentifier == "" {
		return "", fmt.Errorf("%w: plex identity without machine identifier", shared.ErrMalformedResponse)
	}
	p.machineID = resp.MediaContainer.MachineIdentifier
	return p.machineID, nil
}

var parenthetical = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)

// SearchLibrary returns tracks whose title matches the track's title, retrying without
// parenthetical suffixes such as "(feat. X)" or "[Remastered]". Errors are logged and
// reported as no candidates.
func (p *PlexService) SearchLibrary(ctx context.Context, track models.RemoteTrack) []models.LibraryTrack {
	titles := []string{track.Title}
	if stripped := strings.TrimSpace(parenthetical.ReplaceAllString(track.Title, "")); stripped != "" && stripped != track.Title {
		titles = append(titles, stripped)
	}

	for _, title := range titles {
		found, err := p.searchTracks(ctx, title)
		if err != nil {
			p.logger.Warn("plex search failed", "title", title, "artist", track.Artist, "error", err)
			return nil
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func (p *PlexService) searchTracks(ctx context.Context, title string) ([]models.LibraryTrack, error) {
	key, err := p.section(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{"type": {plexTrackType}, "title": {title}, "includeGuids": {"1"}}
	var resp plexContainer
	if err := p.api.doRequest(ctx, http.MethodGet, "/library/sections/"+key+"/all", query, nil, &resp); err != nil {
		return nil, err
	}

	tracks := make([]models.LibraryTrack, 0, len(resp.MediaContainer.Metadata))
	for _, m := range resp.MediaContainer.Metadata {
		tracks = append(tracks, m.toTrack())
	}
	return tracks, nil
}

// RefreshLibrary asks Plex to rescan the music section. The scan runs asynchronously.
func (p *PlexService) RefreshLibrary(ctx context.Context) error {
	key, err := p.section(ctx)
	if err != nil {
		return err
	}
	return p.api.doRequest(ctx, http.MethodGet, "/library/sections/"+key+"/refresh", nil, nil, nil)
}

// MaterializePlaylist makes the audio playlist called title contain exactly trackIDs, in order.
//
// An existing playlist is emptied and refilled; otherwise a new one is created. Plex cannot
// create an empty playlist, so an absent playlist with no tracks is left absent and "" is returned.
func (p *PlexService) MaterializePlaylist(ctx context.Context, title string, trackIDs []string) (string, error) {
	existing, err := p.findPlaylist(ctx, title)
	if err != nil {
		return "", err
	}

	if existing != "" {
		if err := p.api.doRequest(ctx, http.MethodDelete, "/playlists/"+existing+"/items", nil, nil, nil); err != nil {
			return "", fmt.Errorf("failed to clear playlist: %w", err)
		}
		if len(trackIDs) == 0 {
			return existing, nil
		}
		uri, err := p.itemsURI(ctx, trackIDs)
		if err != nil {
			return "", err
		}
		if err := p.api.doRequest(ctx, http.MethodPut, "/playlists/"+existing+"/items", url.Values{"uri": {uri}}, nil, nil); err != nil {
			return "", fmt.Errorf("failed to add playlist items: %w", err)
		}
		return existing, nil
	}

	if len(trackIDs) == 0 {
		return "", nil
	}

	uri, err := p.itemsURI(ctx, trackIDs)
	if err != nil {
		return "", err
	}
	query := url.Values{"type": {"audio"}, "title": {title}, "smart": {"0"}, "uri": {uri}}
	var resp plexContainer
	if err := p.api.doRequest(ctx, http.MethodPost, "/playlists", query, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return "", fmt.Errorf("%w: plex returned no playlist", shared.ErrMalformedResponse)
	}
	return resp.MediaContainer.Metadata[0].RatingKey, nil
}

func (p *PlexService) findPlaylist(ctx context.Context, title string) (string, error) {
	var resp plexContainer
	query := url.Values{"playlistType": {"audio"}}
	if err := p.api.doRequest(ctx, http.MethodGet, "/playlists", query, nil, &resp); err != nil {
		return "", err
	}
	for _, m := range resp.MediaContainer.Metadata {
		if m.Title == title && !m.Smart {
			return m.RatingKey, nil
		}
	}
	return "", nil
}

func (p *PlexService) itemsURI(ctx context.Context, trackIDs []string) (string, error) {
	machineID, err := p.machineIdentifier(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", machineID, strings.Join(trackIDs, ",")), nil
}
