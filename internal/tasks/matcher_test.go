package tasks

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	tu "github.com/desertthunder/jamknife/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestMatcher(t *testing.T) {
	library := &tu.FakeLibrary{Tracks: []models.LibraryTrack{
		{ID: "lib-1", Title: "Mr. Brightside (Remastered)", Artist: "Killers", ExternalIDs: []string{"other"}},
		{ID: "lib-2", Title: "Heroes", Artist: "Måneskin"},
		{ID: "lib-3", Title: "Heroes", Artist: "David Bowie", ExternalIDs: []string{"rec-heroes"}},
		{ID: "lib-4", Title: "Jóga", Artist: "Bjork"},
		{ID: "lib-5", Title: "Stone", Artist: "U2"},
	}}
	m := NewMatcher(library, 0.85, quietLogger())
	ctx := context.Background()

	tc := []struct {
		name   string
		track  models.RemoteTrack
		wantID string
	}{
		{name: "external id wins", track: models.RemoteTrack{ExternalID: "rec-heroes", Title: "Heroes (2017 Remaster)", Artist: "Bowie"}, wantID: "lib-3"},
		{name: "normalized title and artist", track: models.RemoteTrack{Title: "Mr. Brightside", Artist: "The Killers"}, wantID: "lib-1"},
		{name: "artist disambiguates", track: models.RemoteTrack{Title: "Heroes", Artist: "David Bowie"}, wantID: "lib-3"},
		{name: "diacritics folded", track: models.RemoteTrack{Title: "Joga", Artist: "Björk"}, wantID: "lib-4"},
		{name: "wrong artist", track: models.RemoteTrack{Title: "Heroes", Artist: "Motörhead"}},
		{name: "no candidates", track: models.RemoteTrack{Title: "Hyperballad", Artist: "Björk"}},
		{name: "title inside another word", track: models.RemoteTrack{Title: "One", Artist: "U2"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(ctx, tt.track)
			if tt.wantID == "" {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestMatcherThresholdIsTunable(t *testing.T) {
	library := &tu.FakeLibrary{Tracks: []models.LibraryTrack{{ID: "lib-1", Title: "Heroes", Artist: "David Bowi"}}}
	track := models.RemoteTrack{Title: "Heroes", Artist: "David Bowie"}

	_, ok := NewMatcher(library, 0.95, quietLogger()).Match(context.Background(), track)
	assert.False(t, ok)

	_, ok = NewMatcher(library, 0.85, quietLogger()).Match(context.Background(), track)
	assert.True(t, ok)
}
