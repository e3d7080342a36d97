package services

import (
	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/retry"
	"github.com/desertthunder/jamknife/internal/shared"
)

// Clients bundles the external collaborators of the sync engine.
type Clients struct {
	ListenBrainz *ListenBrainzService
	Plex         *PlexService
	YTMusic      *YTMusicService
	Yubal        *YubalService
}

// RetryPolicy converts the configured retry settings.
func RetryPolicy(cfg shared.RetryConfig, logger *log.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay.Duration,
		Factor:      cfg.Factor,
		Logger:      logger,
	}
}

// NewClients builds every client over one retrying HTTP client.
func NewClients(cfg *shared.Config, logger *log.Logger) *Clients {
	client := NewHTTPClient(RetryPolicy(cfg.Retry, logger))

	return &Clients{
		ListenBrainz: NewListenBrainzService(cfg.ListenBrainz.BaseURL, cfg.ListenBrainz.Username, cfg.ListenBrainz.Token, client),
		Plex:         NewPlexService(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Library, client, shared.WithLogger(logger, "service", "plex")),
		YTMusic:      NewYTMusicService(cfg.YTMusic.ProxyURL, cfg.YTMusic.RateLimit, client),
		Yubal:        NewYubalService(cfg.Yubal.URL, client),
	}
}
