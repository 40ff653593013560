package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/version"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	d := Default()

	if cfg.Server.Port != d.Server.Port {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, d.Server.Port)
	}
	if cfg.Player.DefaultVolume != 0.7 {
		t.Errorf("DefaultVolume = %v, want 0.7", cfg.Player.DefaultVolume)
	}
	if cfg.Player.HistoryCapacity != 20 {
		t.Errorf("HistoryCapacity = %d, want 20", cfg.Player.HistoryCapacity)
	}
	if cfg.Store.FlushInterval.Duration != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.Store.FlushInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[remote]
api_base = "http://media.lan:9000"
timeout = "10s"

[offline]
cache_version = "v7"
capacity = 50
exclude = ["/api/"]
skip_waiting = true

[mpd]
host = "player.lan"

[log]
level = "debug"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Remote.APIBase != "http://media.lan:9000" {
		t.Errorf("APIBase = %q", cfg.Remote.APIBase)
	}
	if cfg.Remote.Timeout.Duration != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if cfg.CacheName() != "stellar-client-v7" {
		t.Errorf("CacheName() = %q", cfg.CacheName())
	}
	if cfg.Offline.Capacity != 50 || !cfg.Offline.SkipWaiting {
		t.Errorf("Offline = %+v", cfg.Offline)
	}
	if len(cfg.Offline.Exclude) != 1 || cfg.Offline.Exclude[0] != "/api/" {
		t.Errorf("Exclude = %v", cfg.Offline.Exclude)
	}
	if cfg.MPD.Host != "player.lan" || cfg.MPD.Port != 6600 {
		t.Errorf("MPD = %+v", cfg.MPD)
	}
}

func TestDefaultExcludeFollowsAPIBase(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "[remote]\napi_base = \"http://media.lan:9000\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"http://media.lan:9000", "youtube"}
	if len(cfg.Offline.Exclude) != 2 || cfg.Offline.Exclude[0] != want[0] || cfg.Offline.Exclude[1] != want[1] {
		t.Errorf("Exclude = %v, want %v", cfg.Offline.Exclude, want)
	}
}

func TestLoadFromInvalidFile(t *testing.T) {
	if _, err := LoadFrom(writeConfig(t, "[remote\napi_base=")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STELLAR_API_BASE", "https://api.example.com/")
	t.Setenv("STELLAR_MPD_PORT", "6601")
	t.Setenv("STELLAR_CACHE_EXCLUDE", "/api/, youtube ,")
	t.Setenv("STELLAR_FLUSH_INTERVAL", "250ms")
	t.Setenv("STELLAR_SKIP_WAITING", "true")
	t.Setenv("STELLAR_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(writeConfig(t, "[mpd]\nport = 7000\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Remote.APIBase != "https://api.example.com" {
		t.Errorf("APIBase = %q", cfg.Remote.APIBase)
	}
	if cfg.MPD.Port != 6601 {
		t.Errorf("MPD.Port = %d, want env value 6601", cfg.MPD.Port)
	}
	if len(cfg.Offline.Exclude) != 2 || cfg.Offline.Exclude[1] != "youtube" {
		t.Errorf("Exclude = %v", cfg.Offline.Exclude)
	}
	if cfg.Store.FlushInterval.Duration != 250*time.Millisecond {
		t.Errorf("FlushInterval = %v", cfg.Store.FlushInterval)
	}
	if !cfg.Offline.SkipWaiting || cfg.Log.Level != "warn" {
		t.Errorf("SkipWaiting = %v, Level = %q", cfg.Offline.SkipWaiting, cfg.Log.Level)
	}
}

func TestInvalidEnvOverrideIgnored(t *testing.T) {
	t.Setenv("STELLAR_PORT", "not-a-port")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STELLAR_MPD_HOST=from-dotenv\nSTELLAR_DATA_DIR=/var/lib/stellar\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STELLAR_MPD_HOST", "from-env")
	t.Setenv("STELLAR_DATA_DIR", "")
	os.Unsetenv("STELLAR_DATA_DIR")

	loadDotEnv(envFile)
	t.Cleanup(func() { os.Unsetenv("STELLAR_DATA_DIR") })

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MPD.Host != "from-env" {
		t.Errorf("MPD.Host = %q, want from-env", cfg.MPD.Host)
	}
	if cfg.Store.DataDir != "/var/lib/stellar" {
		t.Errorf("DataDir = %q, want value from .env", cfg.Store.DataDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: invalid port"},
		{"bad api base", func(c *Config) { c.Remote.APIBase = "ftp://x" }, "remote: invalid api_base"},
		{"zero capacity", func(c *Config) { c.Offline.Capacity = 0 }, "offline: capacity"},
		{"volume out of range", func(c *Config) { c.Player.DefaultVolume = 1.5 }, "player: default_volume"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log: invalid log level"},
		{"mpd host", func(c *Config) { c.MPD.Host = "" }, "mpd: host is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server:", "log:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	if got := cfg.DBPath(); got != filepath.Join("data", "offline.db") {
		t.Errorf("DBPath() = %q", got)
	}
	cfg.Store.DBFile = "/tmp/x.db"
	if got := cfg.DBPath(); got != "/tmp/x.db" {
		t.Errorf("DBPath() absolute = %q", got)
	}
}

func TestCacheNameFollowsBuildVersion(t *testing.T) {
	cfg := Default()
	if got, want := cfg.CacheName(), "stellar-client-v"+version.Version; got != want {
		t.Errorf("CacheName() = %q, want %q", got, want)
	}
}
