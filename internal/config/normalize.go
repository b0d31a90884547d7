package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNextcloud()
	c.normalizeTracker()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeRecovery()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.JournalPath) == "" {
		c.Paths.JournalPath = defaultJournalPath
	}
	if c.Paths.JournalPath, err = expandPath(c.Paths.JournalPath); err != nil {
		return fmt.Errorf("paths.journal_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := lookupEnv("LINKRELAY_API_TOKEN"); ok {
		c.Paths.APIToken = value
	}
	return nil
}

func (c *Config) normalizeNextcloud() {
	if value, ok := lookupEnv("NEXTCLOUD_URL"); ok {
		c.Nextcloud.URL = value
	}
	if value, ok := lookupEnv("NEXTCLOUD_USERNAME"); ok {
		c.Nextcloud.Username = value
	}
	if value, ok := lookupEnv("NEXTCLOUD_PASSWORD"); ok {
		c.Nextcloud.Password = value
	}
	if value, ok := lookupEnv("NEXTCLOUD_CSRF_TOKEN"); ok {
		c.Nextcloud.CSRFToken = value
	}
	c.Nextcloud.URL = strings.TrimRight(strings.TrimSpace(c.Nextcloud.URL), "/")
	c.Nextcloud.Username = strings.TrimSpace(c.Nextcloud.Username)
	c.Nextcloud.CSRFToken = strings.TrimSpace(c.Nextcloud.CSRFToken)

	catalog := strings.TrimSpace(c.Nextcloud.CatalogFolder)
	if catalog == "" {
		catalog = defaultCatalogFolder
	}
	catalog = "/" + strings.Trim(catalog, "/")
	c.Nextcloud.CatalogFolder = catalog
}

func (c *Config) normalizeTracker() {
	if value, ok := lookupEnv("MEGAPLAN_API_URL"); ok {
		c.Tracker.URL = value
	}
	if value, ok := lookupEnv("MEGAPLAN_API_KEY"); ok {
		c.Tracker.APIKey = value
	}
	c.Tracker.URL = strings.TrimRight(strings.TrimSpace(c.Tracker.URL), "/")
	c.Tracker.APIKey = strings.TrimSpace(c.Tracker.APIKey)
	c.Tracker.LinkField = strings.TrimSpace(c.Tracker.LinkField)
	if c.Tracker.LinkField == "" {
		c.Tracker.LinkField = defaultTrackerLinkField
	}
}

func (c *Config) normalizeJournal() error {
	c.Journal.Backend = strings.ToLower(strings.TrimSpace(c.Journal.Backend))
	if c.Journal.Backend == "" {
		c.Journal.Backend = JournalBackendJSON
	}
	var err error
	if strings.TrimSpace(c.Journal.SQLitePath) == "" {
		c.Journal.SQLitePath = defaultSQLitePath
	}
	if c.Journal.SQLitePath, err = expandPath(c.Journal.SQLitePath); err != nil {
		return fmt.Errorf("journal.sqlite_path: %w", err)
	}
	if value, ok := lookupEnv("LINKRELAY_POSTGRES_DSN"); ok {
		c.Journal.PostgresDSN = value
	}
	c.Journal.PostgresDSN = strings.TrimSpace(c.Journal.PostgresDSN)
	return nil
}

func (c *Config) normalizeRecovery() {
	c.Recovery.DailyAt = strings.TrimSpace(c.Recovery.DailyAt)
	if c.Recovery.DailyAt == "" {
		c.Recovery.DailyAt = defaultRecoveryDailyAt
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
