package tasks

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

// Matcher resolves playlist tracks against the media library.
type Matcher struct {
	library   LibrarySearcher
	threshold float64
	logger    *log.Logger
}

func NewMatcher(library LibrarySearcher, threshold float64, logger *log.Logger) *Matcher {
	return &Matcher{library: library, threshold: threshold, logger: logger}
}

// Match returns the library track for track, or false when no candidate qualifies.
//
// A candidate carrying the track's recording id wins outright. Otherwise the candidate with the
// best title and artist similarity is taken if it reaches the threshold.
func (m *Matcher) Match(ctx context.Context, track models.RemoteTrack) (*models.LibraryTrack, bool) {
	candidates := m.library.SearchLibrary(ctx, track)
	if len(candidates) == 0 {
		return nil, false
	}

	if track.ExternalID != "" {
		for i := range candidates {
			if slices.Contains(candidates[i].ExternalIDs, track.ExternalID) {
				return &candidates[i], true
			}
		}
	}

	best, bestScore := -1, 0.0
	for i, c := range candidates {
		if score := trackScore(track, c); score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < m.threshold {
		m.logger.Debug("no library match", "title", track.Title, "artist", track.Artist, "best", bestScore)
		return nil, false
	}
	return &candidates[best], true
}

// trackScore is the weaker of the title and artist similarities.
func trackScore(track models.RemoteTrack, c models.LibraryTrack) float64 {
	title := shared.Similarity(track.Title, c.Title)
	if track.Artist == "" || c.Artist == "" {
		return title
	}
	return min(title, shared.Similarity(track.Artist, c.Artist))
}
