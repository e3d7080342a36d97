package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

// Strategy names, in cascade order.
const (
	StrategyAlbumSearch  = "album_search"
	StrategySongSearch   = "song_search"
	StrategyArtistBrowse = "artist_browse"
	StrategyFuzzyTitle   = "fuzzy_title"
)

// ResolutionFailure reports that no strategy produced a confident album for a track.
// It is an expected outcome, recorded as not_found.
type ResolutionFailure struct {
	Track models.RemoteTrack
	Tried []string
	Best  float64 // highest confidence seen below the threshold
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("no album for %s - %s (tried %s, best confidence %.2f)",
		e.Track.Artist, e.Track.Title, strings.Join(e.Tried, ", "), e.Best)
}

// IsResolutionFailure reports whether err carries a [ResolutionFailure].
func IsResolutionFailure(err error) bool {
	var rf *ResolutionFailure
	return errors.As(err, &rf)
}

type strategy struct {
	name   string
	search func(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error)
}

// Resolver finds the catalog album containing a track.
type Resolver struct {
	catalog    Catalog
	threshold  float64
	strategies []strategy
	logger     *log.Logger
}

func NewResolver(catalog Catalog, threshold float64, logger *log.Logger) *Resolver {
	r := &Resolver{catalog: catalog, threshold: threshold, logger: logger}
	r.strategies = []strategy{
		{StrategyAlbumSearch, r.albumSearch},
		{StrategySongSearch, r.songSearch},
		{StrategyArtistBrowse, r.artistBrowse},
		{StrategyFuzzyTitle, r.fuzzyTitle},
	}
	return r
}

// Resolve runs the strategies in order and returns the first candidate whose confidence reaches
// the threshold. Catalog errors skip the strategy; only context errors are returned as is.
// Exhaustion returns a [ResolutionFailure].
func (r *Resolver) Resolve(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error) {
	failure := &ResolutionFailure{Track: track}
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := s.search(ctx, track)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.logger.Debug("catalog strategy failed", "strategy", s.name, "title", track.Title, "error", err)
		}
		failure.Tried = append(failure.Tried, s.name)
		if candidate == nil {
			continue
		}
		if candidate.Confidence < r.threshold {
			failure.Best = max(failure.Best, candidate.Confidence)
			continue
		}

		candidate.Strategy = s.name
		r.logger.Debug("resolved album", "strategy", s.name, "title", track.Title, "album", candidate.Title, "confidence", candidate.Confidence)
		return candidate, nil
	}
	return nil, failure
}

func (r *Resolver) albumSearch(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error) {
	if track.Album == "" {
		return nil, nil
	}
	albums, err := r.catalog.SearchAlbums(ctx, strings.TrimSpace(track.Artist+" "+track.Album))
	if err != nil {
		return nil, err
	}

	var best *models.CatalogAlbum
	bestScore := 0.0
	for i, a := range albums {
		score := min(shared.Similarity(a.Title, track.Album), artistScore(a.Artists, track.Artist))
		if score > bestScore {
			best, bestScore = &albums[i], score
		}
	}
	return r.candidate(ctx, best, bestScore), nil
}

func (r *Resolver) songSearch(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error) {
	songs, err := r.catalog.SearchSongs(ctx, strings.TrimSpace(track.Artist+" "+track.Title))
	if err != nil {
		return nil, err
	}
	return r.bestSong(ctx, songs, func(s models.CatalogSong) float64 {
		return min(shared.Similarity(s.Title, track.Title), artistScore(s.Artists, track.Artist))
	}), nil
}

// artistBrowse looks through the albums and singles of artists named like the track's artist
// for the track's album, or for a release named after the track.
func (r *Resolver) artistBrowse(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error) {
	if track.Artist == "" {
		return nil, nil
	}
	artists, err := r.catalog.SearchArtists(ctx, track.Artist)
	if err != nil {
		return nil, err
	}

	target := track.Album
	if target == "" {
		target = track.Title
	}

	var best *models.CatalogAlbum
	bestScore := 0.0
	for _, artist := range artists {
		artistSim := shared.Similarity(artist.Name, track.Artist)
		if artistSim < r.threshold {
			continue
		}
		albums, err := r.catalog.ArtistAlbums(ctx, artist.BrowseID)
		if err != nil {
			return nil, err
		}
		for i, a := range albums {
			if score := min(artistSim, shared.Similarity(a.Title, target)); score > bestScore {
				best, bestScore = &albums[i], score
			}
		}
	}
	return r.candidate(ctx, best, bestScore), nil
}

// fuzzyTitle searches by title alone and weighs the title over the artist.
func (r *Resolver) fuzzyTitle(ctx context.Context, track models.RemoteTrack) (*models.AlbumCandidate, error) {
	songs, err := r.catalog.SearchSongs(ctx, track.Title)
	if err != nil {
		return nil, err
	}
	return r.bestSong(ctx, songs, func(s models.CatalogSong) float64 {
		return 0.8*shared.Similarity(s.Title, track.Title) + 0.2*artistScore(s.Artists, track.Artist)
	}), nil
}

func (r *Resolver) bestSong(ctx context.Context, songs []models.CatalogSong, score func(models.CatalogSong) float64) *models.AlbumCandidate {
	var best *models.CatalogSong
	bestScore := 0.0
	for i, s := range songs {
		if s.AlbumBrowseID == "" {
			continue
		}
		if sc := score(s); sc > bestScore {
			best, bestScore = &songs[i], sc
		}
	}
	if best == nil {
		return nil
	}
	album := &models.CatalogAlbum{BrowseID: best.AlbumBrowseID, Title: best.Album, Artists: best.Artists}
	return r.candidate(ctx, album, bestScore)
}

// candidate builds the result for album, fetching album details for the audio playlist id used
// as download url. Detail lookups only run for candidates that clear the threshold.
func (r *Resolver) candidate(ctx context.Context, album *models.CatalogAlbum, confidence float64) *models.AlbumCandidate {
	if album == nil {
		return nil
	}
	if confidence >= r.threshold && album.AudioPlaylistID == "" && album.BrowseID != "" {
		if full, err := r.catalog.Album(ctx, album.BrowseID); err == nil && full != nil {
			enriched := *album
			enriched.AudioPlaylistID = full.AudioPlaylistID
			if enriched.Title == "" {
				enriched.Title = full.Title
			}
			if len(enriched.Artists) == 0 {
				enriched.Artists = full.Artists
			}
			album = &enriched
		} else if err != nil {
			r.logger.Debug("album details unavailable", "browse_id", album.BrowseID, "error", err)
		}
	}

	return &models.AlbumCandidate{
		URL:        album.URL(),
		BrowseID:   album.BrowseID,
		Title:      album.Title,
		Artist:     album.Artist(),
		Confidence: confidence,
	}
}

// artistScore is the best similarity between target and any credited artist or their joined names.
func artistScore(artists []string, target string) float64 {
	if target == "" || len(artists) == 0 {
		return 0
	}
	best := shared.Similarity(strings.Join(artists, " & "), target)
	for _, a := range artists {
		best = max(best, shared.Similarity(a, target))
	}
	return best
}
