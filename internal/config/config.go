package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "STELLAR_"

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.stellar-client.toml, $XDG_CONFIG_HOME/stellar-client/config.toml,
// ~/.config/stellar-client/config.toml
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom reads configuration from path. An empty path uses only
// defaults and the environment.
func LoadFrom(path string) (*Config, error) {
	loadDotEnv(".env")

	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded config file")
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding
// variables that are already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable .env file")
	}
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".stellar-client.toml"),
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "stellar-client", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

func env(name string) (string, bool) {
	v := os.Getenv(EnvPrefix + name)
	return v, v != ""
}

func envInt(name string, dst *int) {
	if v, ok := env(name); ok {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		} else {
			log.Warn().Str("var", EnvPrefix+name).Str("value", v).Msg("Ignoring non-integer override")
		}
	}
}

func envDuration(name string, dst *Duration) {
	if v, ok := env(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		} else {
			log.Warn().Str("var", EnvPrefix+name).Str("value", v).Msg("Ignoring invalid duration override")
		}
	}
}

func envList(name string, dst *[]string) {
	if v, ok := env(name); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("PORT", &cfg.Server.Port)
	if v, ok := env("STATIC_DIR"); ok {
		cfg.Server.StaticDir = v
	}
	if v, ok := env("CORS_ORIGIN"); ok {
		cfg.Server.CORSOrigin = v
	}

	// Remote
	if v, ok := env("API_BASE"); ok {
		cfg.Remote.APIBase = strings.TrimRight(v, "/")
	}
	envDuration("API_TIMEOUT", &cfg.Remote.Timeout)
	envInt("SEARCH_RATE_LIMIT", &cfg.Remote.SearchRateLimit)

	// Offline
	if v, ok := env("CACHE_VERSION"); ok {
		cfg.Offline.CacheVersion = v
	}
	envInt("CACHE_CAPACITY", &cfg.Offline.Capacity)
	envList("CACHE_EXCLUDE", &cfg.Offline.Exclude)
	if v, ok := env("APP_ORIGIN"); ok {
		cfg.Offline.AppOrigin = v
	}
	if v, ok := env("SKIP_WAITING"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Offline.SkipWaiting = b
		}
	}
	envDuration("DRAIN_INTERVAL", &cfg.Offline.DrainInterval)
	envDuration("HEALTH_INTERVAL", &cfg.Offline.HealthInterval)

	// Store
	if v, ok := env("DATA_DIR"); ok {
		cfg.Store.DataDir = v
	}
	envDuration("FLUSH_INTERVAL", &cfg.Store.FlushInterval)

	// MPD
	if v, ok := env("MPD_HOST"); ok {
		cfg.MPD.Host = v
	}
	envInt("MPD_PORT", &cfg.MPD.Port)
	if v, ok := env("MPD_PASSWORD"); ok {
		cfg.MPD.Password = v
	}

	// Log
	if v, ok := env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := env("LOG_FILE"); ok {
		cfg.Log.File = v
	}
}
