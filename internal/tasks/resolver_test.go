package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/jamknife/internal/models"
	tu "github.com/desertthunder/jamknife/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var postAlbum = models.CatalogAlbum{BrowseID: "MPREb_post", Title: "Post", Artists: []string{"Björk"}}

func TestResolverCascade(t *testing.T) {
	details := map[string]models.CatalogAlbum{
		"MPREb_post": {BrowseID: "MPREb_post", AudioPlaylistID: "OLAK_post", Title: "Post"},
	}

	tc := []struct {
		name     string
		track    models.RemoteTrack
		catalog  *tu.FakeCatalog
		strategy string
		url      string
	}{
		{
			name:     "album search when album is known",
			track:    models.RemoteTrack{Title: "Hyperballad", Artist: "Björk", Album: "Post"},
			catalog:  &tu.FakeCatalog{Albums: map[string][]models.CatalogAlbum{"Björk Post": {postAlbum}}, AlbumDetails: details},
			strategy: StrategyAlbumSearch,
			url:      "https://music.youtube.com/playlist?list=OLAK_post",
		},
		{
			name:  "song search takes the song's album",
			track: models.RemoteTrack{Title: "Hyperballad", Artist: "Björk"},
			catalog: &tu.FakeCatalog{
				Songs: map[string][]models.CatalogSong{"Björk Hyperballad": {
					{VideoID: "v0", Title: "Hyperballad (Live)", Artists: []string{"Someone Else"}, Album: "Live", AlbumBrowseID: "MPREb_live"},
					{VideoID: "v1", Title: "Hyperballad", Artists: []string{"Björk"}, Album: "Post", AlbumBrowseID: "MPREb_post"},
				}},
				AlbumDetails: details,
			},
			strategy: StrategySongSearch,
			url:      "https://music.youtube.com/playlist?list=OLAK_post",
		},
		{
			name:  "artist browse finds the album among the discography",
			track: models.RemoteTrack{Title: "Hyperballad", Artist: "Björk", Album: "Post (Remastered)"},
			catalog: &tu.FakeCatalog{
				Artists:     map[string][]models.CatalogArtist{"Björk": {{BrowseID: "UC_bjork", Name: "Bjork"}}},
				ArtistAlbum: map[string][]models.CatalogAlbum{"UC_bjork": {{BrowseID: "MPREb_debut", Title: "Debut"}, postAlbum}},
			},
			strategy: StrategyArtistBrowse,
			url:      "https://music.youtube.com/browse/MPREb_post",
		},
		{
			name:  "fuzzy title ignores a mismatched artist credit",
			track: models.RemoteTrack{Title: "Hyperballad", Artist: "Bjork Gudmundsdottir"},
			catalog: &tu.FakeCatalog{
				Songs: map[string][]models.CatalogSong{"Hyperballad": {
					{VideoID: "v1", Title: "Hyperballad", Artists: []string{"Björk"}, Album: "Post", AlbumBrowseID: "MPREb_post"},
				}},
			},
			strategy: StrategyFuzzyTitle,
			url:      "https://music.youtube.com/browse/MPREb_post",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.catalog, 0.8, quietLogger())
			got, err := r.Resolve(context.Background(), tt.track)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, got.Strategy)
			assert.Equal(t, tt.url, got.URL)
			assert.GreaterOrEqual(t, got.Confidence, 0.8)
		})
	}
}

func TestResolverStopsAtFirstConfidentStrategy(t *testing.T) {
	catalog := &tu.FakeCatalog{
		Albums:       map[string][]models.CatalogAlbum{"Björk Post": {postAlbum}},
		AlbumDetails: map[string]models.CatalogAlbum{"MPREb_post": {AudioPlaylistID: "OLAK_post"}},
	}
	r := NewResolver(catalog, 0.8, quietLogger())

	_, err := r.Resolve(context.Background(), models.RemoteTrack{Title: "Hyperballad", Artist: "Björk", Album: "Post"})
	require.NoError(t, err)
	assert.Equal(t, []string{"albums:Björk Post", "album:MPREb_post"}, catalog.Queries)
}

func TestResolverExhaustion(t *testing.T) {
	catalog := &tu.FakeCatalog{
		Albums: map[string][]models.CatalogAlbum{"Björk Post": {{BrowseID: "x", Title: "Homogenic", Artists: []string{"Björk"}}}},
	}
	r := NewResolver(catalog, 0.8, quietLogger())

	got, err := r.Resolve(context.Background(), models.RemoteTrack{Title: "Hyperballad", Artist: "Björk", Album: "Post"})
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, IsResolutionFailure(err))

	var rf *ResolutionFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, []string{StrategyAlbumSearch, StrategySongSearch, StrategyArtistBrowse, StrategyFuzzyTitle}, rf.Tried)
	assert.Greater(t, rf.Best, 0.0)
	assert.Less(t, rf.Best, 0.8)
}

func TestResolverCatalogErrors(t *testing.T) {
	t.Run("catalog failures exhaust the cascade", func(t *testing.T) {
		r := NewResolver(&tu.FakeCatalog{Err: errors.New("proxy down")}, 0.8, quietLogger())
		_, err := r.Resolve(context.Background(), models.RemoteTrack{Title: "Hyperballad", Artist: "Björk"})
		assert.True(t, IsResolutionFailure(err))
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewResolver(&tu.FakeCatalog{}, 0.8, quietLogger())
		_, err := r.Resolve(ctx, models.RemoteTrack{Title: "Hyperballad", Artist: "Björk"})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsResolutionFailure(err))
	})
}
