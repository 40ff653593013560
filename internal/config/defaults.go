package config

import (
	"path/filepath"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/version"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3001,
		},
		Remote: RemoteConfig{
			APIBase:         "http://localhost:8000",
			Timeout:         Duration{30 * time.Second},
			SearchRateLimit: 5,
		},
		Offline: OfflineConfig{
			CachePrefix:    "stellar-client",
			Capacity:       200,
			Precache:       []string{"/", "/index.html"},
			AppOrigin:      "http://localhost:3001",
			RootDocument:   "/index.html",
			DrainInterval:  Duration{time.Minute},
			HealthInterval: Duration{15 * time.Second},
		},
		Store: StoreConfig{
			DataDir:       "data",
			DBFile:        "offline.db",
			FlushInterval: Duration{5 * time.Second},
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Player: PlayerConfig{
			DefaultVolume:   0.7,
			HistoryCapacity: 20,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Server
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}

	// Remote
	if c.Remote.APIBase == "" {
		c.Remote.APIBase = d.Remote.APIBase
	}
	if c.Remote.Timeout.Duration == 0 {
		c.Remote.Timeout = d.Remote.Timeout
	}
	if c.Remote.SearchRateLimit == 0 {
		c.Remote.SearchRateLimit = d.Remote.SearchRateLimit
	}

	// Offline
	if c.Offline.CachePrefix == "" {
		c.Offline.CachePrefix = d.Offline.CachePrefix
	}
	if c.Offline.Capacity == 0 {
		c.Offline.Capacity = d.Offline.Capacity
	}
	if c.Offline.Precache == nil {
		c.Offline.Precache = d.Offline.Precache
	}
	if c.Offline.Exclude == nil {
		// API calls and third-party media always go to the network.
		c.Offline.Exclude = []string{c.Remote.APIBase, "youtube"}
	}
	if c.Offline.AppOrigin == "" {
		c.Offline.AppOrigin = d.Offline.AppOrigin
	}
	if c.Offline.RootDocument == "" {
		c.Offline.RootDocument = d.Offline.RootDocument
	}
	if c.Offline.DrainInterval.Duration == 0 {
		c.Offline.DrainInterval = d.Offline.DrainInterval
	}
	if c.Offline.HealthInterval.Duration == 0 {
		c.Offline.HealthInterval = d.Offline.HealthInterval
	}

	// Store
	if c.Store.DataDir == "" {
		c.Store.DataDir = d.Store.DataDir
	}
	if c.Store.DBFile == "" {
		c.Store.DBFile = d.Store.DBFile
	}
	if c.Store.FlushInterval.Duration == 0 {
		c.Store.FlushInterval = d.Store.FlushInterval
	}

	// MPD
	if c.MPD.Host == "" {
		c.MPD.Host = d.MPD.Host
	}
	if c.MPD.Port == 0 {
		c.MPD.Port = d.MPD.Port
	}

	// Player
	if c.Player.DefaultVolume == 0 {
		c.Player.DefaultVolume = d.Player.DefaultVolume
	}
	if c.Player.HistoryCapacity == 0 {
		c.Player.HistoryCapacity = d.Player.HistoryCapacity
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = d.Log.MaxAgeDays
	}
}

// DBPath is the SQLite file holding caches, retries and session data.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Store.DBFile) {
		return c.Store.DBFile
	}
	return filepath.Join(c.Store.DataDir, c.Store.DBFile)
}

// CacheName is the versioned resource cache name. Without an explicit
// cache_version the build version is used, so upgrades retire old caches.
func (c *Config) CacheName() string {
	if c.Offline.CacheVersion == "" {
		return version.CacheName(c.Offline.CachePrefix)
	}
	return c.Offline.CachePrefix + "-" + c.Offline.CacheVersion
}
