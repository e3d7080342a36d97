package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./jamknife.db" {
			t.Errorf("expected database path ./jamknife.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8000 {
			t.Errorf("expected server port 8000, got %d", config.Server.Port)
		}

		if config.Plex.Library != "Music" {
			t.Errorf("expected plex library Music, got %s", config.Plex.Library)
		}

		if config.Retry.MaxAttempts != 3 || config.Retry.BaseDelay.Duration != time.Second || config.Retry.Factor != 2 {
			t.Errorf("unexpected retry defaults: %+v", config.Retry)
		}

		if config.Yubal.PollInterval.Duration != 5*time.Second {
			t.Errorf("expected poll interval 5s, got %v", config.Yubal.PollInterval)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
port = 9000

[plex]
url = "http://plex.local:32400"
token = "plex-token"

[yubal]
download_timeout = "30m"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9000 {
			t.Errorf("expected server port 9000, got %d", config.Server.Port)
		}

		if config.Yubal.DownloadTimeout.Duration != 30*time.Minute {
			t.Errorf("expected download timeout 30m, got %v", config.Yubal.DownloadTimeout)
		}

		if config.Sync.Workers != 3 {
			t.Errorf("keys absent from the file should keep defaults, got workers=%d", config.Sync.Workers)
		}
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[sync]\njob_timeout = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("PLEX_TOKEN", "legacy-token")
		t.Setenv("JAMKNIFE_YUBAL_URL", "http://yubal:9999")
		t.Setenv("WEB_PORT", "8123")
		t.Setenv("DATA_DIR", "/data")

		config := DefaultConfig()
		if err := config.ApplyEnv(); err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if config.Plex.Token != "legacy-token" {
			t.Errorf("expected plex token from PLEX_TOKEN, got %q", config.Plex.Token)
		}
		if config.Yubal.URL != "http://yubal:9999" {
			t.Errorf("expected yubal url from JAMKNIFE_YUBAL_URL, got %q", config.Yubal.URL)
		}
		if config.Server.Port != 8123 {
			t.Errorf("expected port 8123, got %d", config.Server.Port)
		}
		if config.Database.Path != filepath.Join("/data", "jamknife.db") {
			t.Errorf("expected database under DATA_DIR, got %s", config.Database.Path)
		}
		if config.Plex.URL != "http://localhost:32400" {
			t.Errorf("unset variables should keep defaults, got %s", config.Plex.URL)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		err := config.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if !strings.Contains(err.Error(), "missing plex.token") {
			t.Errorf("expected missing plex.token in %q", err.Error())
		}

		config.Plex.Token = "token"
		if err := config.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}

		config.Sync.MatchThreshold = 1.5
		if err := config.Validate(); err == nil {
			t.Error("expected threshold out of range to fail")
		}
	})
}
