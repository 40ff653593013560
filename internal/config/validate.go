package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := c.Offline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("offline: %w", err))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := c.MPD.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mpd: %w", err))
	}
	if err := c.Player.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("player: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

func validHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if !validPort(c.Port) {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Validate checks RemoteConfig for errors.
func (c *RemoteConfig) Validate() error {
	if err := validHTTPURL(c.APIBase); err != nil {
		return fmt.Errorf("invalid api_base: %w", err)
	}
	if c.Timeout.Duration < 0 {
		return errors.New("timeout must be non-negative")
	}
	if c.SearchRateLimit < 0 {
		return errors.New("search_rate_limit must be non-negative")
	}
	return nil
}

// Validate checks OfflineConfig for errors.
func (c *OfflineConfig) Validate() error {
	var errs []error
	if c.Capacity < 1 {
		errs = append(errs, errors.New("capacity must be at least 1"))
	}
	if err := validHTTPURL(c.AppOrigin); err != nil {
		errs = append(errs, fmt.Errorf("invalid app_origin: %w", err))
	}
	if c.DrainInterval.Duration < 0 || c.HealthInterval.Duration < 0 {
		errs = append(errs, errors.New("intervals must be non-negative"))
	}
	return errors.Join(errs...)
}

// Validate checks StoreConfig for errors.
func (c *StoreConfig) Validate() error {
	if c.DBFile == "" {
		return errors.New("db_file is required")
	}
	if c.FlushInterval.Duration < 0 {
		return errors.New("flush_interval must be non-negative")
	}
	return nil
}

// Validate checks MPDConfig for errors.
func (c *MPDConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if !validPort(c.Port) {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Validate checks PlayerConfig for errors.
func (c *PlayerConfig) Validate() error {
	if c.DefaultVolume < 0 || c.DefaultVolume > 1 {
		return errors.New("default_volume must be between 0 and 1")
	}
	if c.HistoryCapacity < 1 {
		return errors.New("history_capacity must be at least 1")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.New("rotation limits must be non-negative")
	}
	return nil
}
