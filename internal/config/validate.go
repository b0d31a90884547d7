package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNextcloud(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateHTTP(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateNextcloud() error {
	if c.Nextcloud.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("nextcloud.url is required. Set NEXTCLOUD_URL env var or edit %s (create with 'linkrelay config init')", defaultPath)
	}
	if err := validateBaseURL("nextcloud.url", c.Nextcloud.URL); err != nil {
		return err
	}
	if c.Nextcloud.Username == "" {
		return errors.New("nextcloud.username must be set")
	}
	if strings.Contains(c.Nextcloud.Username, "/") {
		return errors.New("nextcloud.username must not contain '/'")
	}
	return nil
}

func (c *Config) validateTracker() error {
	if c.Tracker.URL == "" {
		return errors.New("tracker.url is required. Set MEGAPLAN_API_URL env var or edit the config file")
	}
	if err := validateBaseURL("tracker.url", c.Tracker.URL); err != nil {
		return err
	}
	if c.Tracker.UTCOffsetHours < -12 || c.Tracker.UTCOffsetHours > 14 {
		return errors.New("tracker.utc_offset_hours must be between -12 and 14")
	}
	return nil
}

func (c *Config) validateJournal() error {
	switch c.Journal.Backend {
	case JournalBackendJSON, JournalBackendSQLite:
		return nil
	case JournalBackendPostgres:
		if c.Journal.PostgresDSN == "" {
			return errors.New("journal.postgres_dsn must be set when journal.backend is postgres")
		}
		return nil
	default:
		return fmt.Errorf("journal.backend: unsupported value %q (expected json, sqlite or postgres)", c.Journal.Backend)
	}
}

func (c *Config) validateRecovery() error {
	if _, _, err := ParseClock(c.Recovery.DailyAt); err != nil {
		return fmt.Errorf("recovery.daily_at: %w", err)
	}
	if c.Recovery.StaggerSeconds < 0 {
		return errors.New("recovery.stagger_seconds must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"recovery.max_records":  c.Recovery.MaxRecords,
		"recovery.tick_seconds": c.Recovery.TickSeconds,
	})
}

func (c *Config) validateHTTP() error {
	return ensurePositiveMap(map[string]int{
		"http.request_timeout_seconds":  c.HTTP.RequestTimeout,
		"http.shutdown_timeout_seconds": c.HTTP.ShutdownTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock value.
func ParseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func validateBaseURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
