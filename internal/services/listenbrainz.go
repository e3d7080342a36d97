// ListenBrainz playlist source
//
// Generated playlists are served as JSPF documents from the public API.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"golang.org/x/oauth2"
)

const (
	defaultListenBrainzURL = "https://api.listenbrainz.org"
	jspfTrackExtension     = "https://musicbrainz.org/doc/jspf#track"
	jspfPlaylistExtension  = "https://musicbrainz.org/doc/jspf#playlist"
)

// ListenBrainzService fetches generated playlists for a user.
type ListenBrainzService struct {
	api      *APIService
	username string
}

// NewListenBrainzService creates a client. A non-empty token is sent as "Authorization: Token <token>".
func NewListenBrainzService(baseURL, username, token string, client *http.Client) *ListenBrainzService {
	if baseURL == "" {
		baseURL = defaultListenBrainzURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Token"})
		client = oauth2.NewClient(ctx, src)
	}

	return &ListenBrainzService{
		api:      NewAPIService("ListenBrainz", strings.TrimRight(baseURL, "/")+"/1", client),
		username: username,
	}
}

func (l *ListenBrainzService) Name() string {
	return "ListenBrainz"
}

type jspfDocument struct {
	Playlist jspfPlaylist `json:"playlist"`
}

type jspfPlaylist struct {
	Title      string                     `json:"title"`
	Creator    string                     `json:"creator"`
	Identifier string                     `json:"identifier"`
	Extension  map[string]json.RawMessage `json:"extension"`
	Track      []jspfTrack                `json:"track"`
}

type jspfTrack struct {
	Title      string                     `json:"title"`
	Creator    string                     `json:"creator"`
	Album      string                     `json:"album"`
	Identifier json.RawMessage            `json:"identifier"`
	Extension  map[string]json.RawMessage `json:"extension"`
}

type jspfTrackMeta struct {
	ReleaseIdentifier string   `json:"release_identifier"`
	ArtistIdentifiers []string `json:"artist_identifiers"`
}

type jspfPlaylistMeta struct {
	CreatedFor string `json:"created_for"`
}

// FetchRemotePlaylist retrieves a playlist's ordered track list.
//
// Calls GET /1/playlist/{mbid}.
func (l *ListenBrainzService) FetchRemotePlaylist(ctx context.Context, ref string) (*models.RemotePlaylist, error) {
	var doc jspfDocument
	err := l.api.doRequest(ctx, http.MethodGet, "/playlist/"+url.PathEscape(ref), nil, nil, &doc)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, ref)
	}
	if err != nil {
		return nil, err
	}

	playlist := doc.Playlist.toModel()
	if playlist.Ref == "" {
		playlist.Ref = ref
	}
	for _, t := range doc.Playlist.Track {
		playlist.Tracks = append(playlist.Tracks, t.toModel())
	}
	return &playlist, nil
}

// DiscoverPlaylists lists playlists generated for the configured user, without tracks.
//
// Calls GET /1/user/{user}/playlists/createdfor.
func (l *ListenBrainzService) DiscoverPlaylists(ctx context.Context) ([]models.RemotePlaylist, error) {
	if l.username == "" {
		return nil, fmt.Errorf("%w: listenbrainz username", shared.ErrMissingConfig)
	}

	var resp struct {
		Playlists []jspfDocument `json:"playlists"`
	}
	path := "/user/" + url.PathEscape(l.username) + "/playlists/createdfor"
	if err := l.api.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	playlists := make([]models.RemotePlaylist, 0, len(resp.Playlists))
	for _, doc := range resp.Playlists {
		playlists = append(playlists, doc.Playlist.toModel())
	}
	return playlists, nil
}

func (p jspfPlaylist) toModel() models.RemotePlaylist {
	playlist := models.RemotePlaylist{
		Ref:     lastPathSegment(p.Identifier),
		Name:    p.Title,
		Creator: p.Creator,
	}
	if raw, ok := p.Extension[jspfPlaylistExtension]; ok {
		var meta jspfPlaylistMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			playlist.CreatedFor = meta.CreatedFor
		}
	}
	return playlist
}

func (t jspfTrack) toModel() models.RemoteTrack {
	track := models.RemoteTrack{
		ExternalID: lastPathSegment(firstIdentifier(t.Identifier)),
		Title:      t.Title,
		Artist:     t.Creator,
		Album:      t.Album,
	}
	if raw, ok := t.Extension[jspfTrackExtension]; ok {
		var meta jspfTrackMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			track.ReleaseID = lastPathSegment(meta.ReleaseIdentifier)
		}
	}
	return track
}

// firstIdentifier accepts both the string and the list form of a JSPF identifier.
func firstIdentifier(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func lastPathSegment(s string) string {
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
