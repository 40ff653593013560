// Package config loads client settings from TOML, .env and the environment.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Remote  RemoteConfig  `toml:"remote"`
	Offline OfflineConfig `toml:"offline"`
	Store   StoreConfig   `toml:"store"`
	MPD     MPDConfig     `toml:"mpd"`
	Player  PlayerConfig  `toml:"player"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig holds the control surface listener.
type ServerConfig struct {
	Port       int    `toml:"port"`
	StaticDir  string `toml:"static_dir"`
	CORSOrigin string `toml:"cors_origin"`
}

// RemoteConfig holds media service settings.
type RemoteConfig struct {
	APIBase         string   `toml:"api_base"`
	Timeout         Duration `toml:"timeout"`
	SearchRateLimit int      `toml:"search_rate_limit"`
}

// OfflineConfig holds resource cache and retry settings.
type OfflineConfig struct {
	CachePrefix    string   `toml:"cache_prefix"`
	CacheVersion   string   `toml:"cache_version"`
	Capacity       int      `toml:"capacity"`
	Precache       []string `toml:"precache"`
	Exclude        []string `toml:"exclude"`
	AppOrigin      string   `toml:"app_origin"`
	RootDocument   string   `toml:"root_document"`
	SkipWaiting    bool     `toml:"skip_waiting"`
	DrainInterval  Duration `toml:"drain_interval"`
	HealthInterval Duration `toml:"health_interval"`
}

// StoreConfig holds local persistence settings.
type StoreConfig struct {
	DataDir       string   `toml:"data_dir"`
	DBFile        string   `toml:"db_file"`
	FlushInterval Duration `toml:"flush_interval"`
}

// MPDConfig holds the playback daemon connection.
type MPDConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// PlayerConfig holds playback defaults.
type PlayerConfig struct {
	DefaultVolume   float64 `toml:"default_volume"`
	HistoryCapacity int     `toml:"history_capacity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Duration is a time.Duration written as "5s" or "1m30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
