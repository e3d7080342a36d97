// YouTube Music catalog
//
// Communicates with the FastAPI proxy wrapping the ytmusicapi Python library.
// Requests are rate limited on the client side.
package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/desertthunder/jamknife/internal/models"
	"golang.org/x/time/rate"
)

const defaultYTBaseURL string = "http://127.0.0.1:8090"

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbumRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// youtubeResult covers the album, song and artist search result shapes.
type youtubeResult struct {
	ResultType      string           `json:"resultType"`
	Title           string           `json:"title"`
	Artist          string           `json:"artist"`
	Artists         []YouTubeArtist  `json:"artists"`
	Album           *youtubeAlbumRef `json:"album"`
	BrowseID        string           `json:"browseId"`
	VideoID         string           `json:"videoId"`
	PlaylistID      string           `json:"playlistId"`
	AudioPlaylistID string           `json:"audioPlaylistId"`
	Year            string           `json:"year"`
}

func (r youtubeResult) artistNames() []string {
	names := make([]string, 0, len(r.Artists))
	for _, a := range r.Artists {
		names = append(names, a.Name)
	}
	return names
}

func (r youtubeResult) toAlbum() models.CatalogAlbum {
	audio := r.AudioPlaylistID
	if audio == "" {
		audio = r.PlaylistID
	}
	return models.CatalogAlbum{BrowseID: r.BrowseID, AudioPlaylistID: audio, Title: r.Title, Artists: r.artistNames(), Year: r.Year}
}

// YTMusicService searches the YouTube Music catalog through the proxy.
type YTMusicService struct {
	api     *APIService
	limiter *rate.Limiter
}

// NewYTMusicService creates a catalog client allowing perSecond requests per second.
// A non-positive rate disables limiting.
func NewYTMusicService(baseURL string, perSecond float64, client *http.Client) *YTMusicService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	return &YTMusicService{
		api:     NewAPIService("YouTube Music", baseURL, client),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (y *YTMusicService) Name() string {
	return "YouTube Music"
}

func (y *YTMusicService) get(ctx context.Context, path string, query url.Values, result any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return err
	}
	return y.api.doRequest(ctx, http.MethodGet, path, query, nil, result)
}

func (y *YTMusicService) search(ctx context.Context, q, filter string) ([]youtubeResult, error) {
	var results []youtubeResult
	err := y.get(ctx, "/api/search", url.Values{"q": {q}, "filter": {filter}}, &results)
	return results, err
}

// SearchAlbums calls GET /api/search?q={q}&filter=albums on the proxy.
func (y *YTMusicService) SearchAlbums(ctx context.Context, q string) ([]models.CatalogAlbum, error) {
	results, err := y.search(ctx, q, "albums")
	if err != nil {
		return nil, err
	}
	albums := make([]models.CatalogAlbum, 0, len(results))
	for _, r := range results {
		if r.BrowseID != "" {
			albums = append(albums, r.toAlbum())
		}
	}
	return albums, nil
}

// SearchSongs calls GET /api/search?q={q}&filter=songs on the proxy.
func (y *YTMusicService) SearchSongs(ctx context.Context, q string) ([]models.CatalogSong, error) {
	results, err := y.search(ctx, q, "songs")
	if err != nil {
		return nil, err
	}
	songs := make([]models.CatalogSong, 0, len(results))
	for _, r := range results {
		song := models.CatalogSong{VideoID: r.VideoID, Title: r.Title, Artists: r.artistNames()}
		if r.Album != nil {
			song.Album = r.Album.Name
			song.AlbumBrowseID = r.Album.ID
		}
		songs = append(songs, song)
	}
	return songs, nil
}

// SearchArtists calls GET /api/search?q={q}&filter=artists on the proxy.
func (y *YTMusicService) SearchArtists(ctx context.Context, q string) ([]models.CatalogArtist, error) {
	results, err := y.search(ctx, q, "artists")
	if err != nil {
		return nil, err
	}
	artists := make([]models.CatalogArtist, 0, len(results))
	for _, r := range results {
		name := r.Artist
		if name == "" {
			name = r.Title
		}
		if r.BrowseID != "" {
			artists = append(artists, models.CatalogArtist{BrowseID: r.BrowseID, Name: name})
		}
	}
	return artists, nil
}

// ArtistAlbums calls GET /api/artists/{browseId} and returns the artist's albums.
func (y *YTMusicService) ArtistAlbums(ctx context.Context, artistID string) ([]models.CatalogAlbum, error) {
	var resp struct {
		Name   string `json:"name"`
		Albums struct {
			Results []youtubeResult `json:"results"`
		} `json:"albums"`
		Singles struct {
			Results []youtubeResult `json:"results"`
		} `json:"singles"`
	}
	if err := y.get(ctx, "/api/artists/"+url.PathEscape(artistID), nil, &resp); err != nil {
		return nil, err
	}

	var albums []models.CatalogAlbum
	for _, r := range append(resp.Albums.Results, resp.Singles.Results...) {
		album := r.toAlbum()
		if len(album.Artists) == 0 && resp.Name != "" {
			album.Artists = []string{resp.Name}
		}
		albums = append(albums, album)
	}
	return albums, nil
}

// Album calls GET /api/albums/{browseId}, which carries the audio playlist id used for downloads.
func (y *YTMusicService) Album(ctx context.Context, browseID string) (*models.CatalogAlbum, error) {
	var resp youtubeResult
	if err := y.get(ctx, "/api/albums/"+url.PathEscape(browseID), nil, &resp); err != nil {
		return nil, err
	}
	album := resp.toAlbum()
	if album.BrowseID == "" {
		album.BrowseID = browseID
	}
	return &album, nil
}
