package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	ListenBrainz ListenBrainzConfig `toml:"listenbrainz"`
	Plex         PlexConfig         `toml:"plex"`
	YTMusic      YTMusicConfig      `toml:"ytmusic"`
	Yubal        YubalConfig        `toml:"yubal"`
	Sync         SyncConfig         `toml:"sync"`
	Retry        RetryConfig        `toml:"retry"`
	Queue        QueueConfig        `toml:"queue"`
	Schedule     ScheduleConfig     `toml:"schedule"`
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
}

// ListenBrainzConfig contains the playlist source settings.
type ListenBrainzConfig struct {
	BaseURL  string `toml:"base_url"`
	Username string `toml:"username"`
	Token    string `toml:"token"`
}

// PlexConfig contains the media library settings.
type PlexConfig struct {
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Library string `toml:"library"`
}

// YTMusicConfig contains the catalog proxy settings.
type YTMusicConfig struct {
	ProxyURL  string  `toml:"proxy_url"`
	RateLimit float64 `toml:"rate_limit"`
}

// YubalConfig contains the download service settings.
type YubalConfig struct {
	URL             string   `toml:"url"`
	PollInterval    Duration `toml:"poll_interval"`
	DownloadTimeout Duration `toml:"download_timeout"`
	MaxAttempts     int      `toml:"max_attempts"`
}

// SyncConfig contains orchestrator tunables.
type SyncConfig struct {
	Workers          int      `toml:"workers"`
	JobTimeout       Duration `toml:"job_timeout"`
	RefreshSettle    Duration `toml:"refresh_settle"`
	MatchThreshold   float64  `toml:"match_threshold"`
	ResolveThreshold float64  `toml:"resolve_threshold"`
}

// RetryConfig contains the transport retry policy.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	Factor      float64  `toml:"factor"`
}

// QueueConfig contains background task queue settings.
type QueueConfig struct {
	Workers      int      `toml:"workers"`
	ReleaseAfter Duration `toml:"release_after"`
}

// ScheduleConfig contains the scheduler settings and the defaults given to discovered playlists.
type ScheduleConfig struct {
	Discover         string `toml:"discover"` // cron expression; empty disables discovery
	EnableDiscovered bool   `toml:"enable_discovered"`
	DailyTime        string `toml:"daily_time"`
	WeeklyDay        string `toml:"weekly_day"`
	WeeklyTime       string `toml:"weekly_time"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Duration is a [time.Duration] written as a string ("5s", "15m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envBindings maps config keys to the environment variables that override them, in priority order.
var envBindings = map[string][]string{
	"listenbrainz.base_url": {"JAMKNIFE_LISTENBRAINZ_URL", "LISTENBRAINZ_URL"},
	"listenbrainz.username": {"JAMKNIFE_LISTENBRAINZ_USERNAME", "LISTENBRAINZ_USERNAME"},
	"listenbrainz.token":    {"JAMKNIFE_LISTENBRAINZ_TOKEN", "LISTENBRAINZ_TOKEN"},
	"plex.url":              {"JAMKNIFE_PLEX_URL", "PLEX_URL"},
	"plex.token":            {"JAMKNIFE_PLEX_TOKEN", "PLEX_TOKEN"},
	"plex.library":          {"JAMKNIFE_PLEX_LIBRARY", "PLEX_MUSIC_LIBRARY"},
	"ytmusic.proxy_url":     {"JAMKNIFE_YTMUSIC_PROXY_URL", "YTMUSIC_PROXY_URL"},
	"yubal.url":             {"JAMKNIFE_YUBAL_URL", "YUBAL_URL"},
	"data_dir":              {"JAMKNIFE_DATA_DIR", "DATA_DIR"},
	"server.host":           {"JAMKNIFE_WEB_HOST", "WEB_HOST"},
	"server.port":           {"JAMKNIFE_WEB_PORT", "WEB_PORT"},
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() error {
	v := viper.New()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("%w: bind %s: %v", ErrInvalidConfig, key, err)
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("listenbrainz.base_url", &c.ListenBrainz.BaseURL)
	str("listenbrainz.username", &c.ListenBrainz.Username)
	str("listenbrainz.token", &c.ListenBrainz.Token)
	str("plex.url", &c.Plex.URL)
	str("plex.token", &c.Plex.Token)
	str("plex.library", &c.Plex.Library)
	str("ytmusic.proxy_url", &c.YTMusic.ProxyURL)
	str("yubal.url", &c.Yubal.URL)
	str("server.host", &c.Server.Host)

	if v.IsSet("server.port") {
		c.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("data_dir") {
		c.Database.Path = filepath.Join(v.GetString("data_dir"), "jamknife.db")
	}
	return nil
}

// Validate reports every missing or out of range setting in one error.
func (c *Config) Validate() error {
	var problems []string
	required := map[string]string{
		"plex.url":          c.Plex.URL,
		"plex.token":        c.Plex.Token,
		"plex.library":      c.Plex.Library,
		"ytmusic.proxy_url": c.YTMusic.ProxyURL,
		"yubal.url":         c.Yubal.URL,
		"database.path":     c.Database.Path,
	}
	for _, key := range []string{"plex.url", "plex.token", "plex.library", "ytmusic.proxy_url", "yubal.url", "database.path"} {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, "missing "+key)
		}
	}

	if c.Sync.Workers < 1 {
		problems = append(problems, "sync.workers must be at least 1")
	}
	if c.Sync.MatchThreshold <= 0 || c.Sync.MatchThreshold > 1 {
		problems = append(problems, "sync.match_threshold must be in (0, 1]")
	}
	if c.Sync.ResolveThreshold <= 0 || c.Sync.ResolveThreshold > 1 {
		problems = append(problems, "sync.resolve_threshold must be in (0, 1]")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if c.Yubal.MaxAttempts < 1 {
		problems = append(problems, "yubal.max_attempts must be at least 1")
	}
	if c.Yubal.PollInterval.Duration <= 0 {
		problems = append(problems, "yubal.poll_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
