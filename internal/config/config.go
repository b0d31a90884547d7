package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations and bind address configuration.
type Paths struct {
	JournalPath string `toml:"journal_path"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Nextcloud contains credentials for the WebDAV and OCS sharing endpoints.
type Nextcloud struct {
	URL           string `toml:"url"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	CSRFToken     string `toml:"csrf_token"`
	CatalogFolder string `toml:"catalog_folder"`
}

// Tracker contains configuration for the task tracker REST API.
type Tracker struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	LinkField      string `toml:"link_field"`
	UTCOffsetHours int    `toml:"utc_offset_hours"`
}

// Journal selects and configures the binding journal backend.
type Journal struct {
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Recovery contains configuration for the daily share refresh sweep.
type Recovery struct {
	Enabled        bool   `toml:"enabled"`
	DailyAt        string `toml:"daily_at"`
	StaggerSeconds int    `toml:"stagger_seconds"`
	MaxRecords     int    `toml:"max_records"`
	TickSeconds    int    `toml:"tick_seconds"`
	RunOnStart     bool   `toml:"run_on_start"`
}

// HTTP contains timeouts shared by the inbound server and outbound clients.
type HTTP struct {
	RequestTimeout  int `toml:"request_timeout_seconds"`
	ShutdownTimeout int `toml:"shutdown_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains Prometheus exposition settings.
type Metrics struct {
	Namespace string `toml:"namespace"`
}

// Config encapsulates all configuration values for linkrelay.
//
// Configuration sections by subsystem:
//   - Paths: journal file, log directory, and API bind address
//   - Nextcloud: WebDAV folder and OCS share endpoints
//   - Tracker: task tracker REST endpoint receiving share links
//   - Journal: binding store backend selection
//   - Recovery: daily share refresh sweep
//   - HTTP: inbound and outbound timeouts
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus namespace
type Config struct {
	Paths     Paths     `toml:"paths"`
	Nextcloud Nextcloud `toml:"nextcloud"`
	Tracker   Tracker   `toml:"tracker"`
	Journal   Journal   `toml:"journal"`
	Recovery  Recovery  `toml:"recovery"`
	HTTP      HTTP      `toml:"http"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("linkrelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory and the journal's parent directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.JournalPath)}
	if c.Journal.Backend == JournalBackendSQLite {
		dirs = append(dirs, filepath.Dir(c.Journal.SQLitePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the outbound HTTP request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeout) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget for the HTTP server.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeout) * time.Second
}

// RecoveryStagger returns the delay added per journal record during a sweep.
func (c *Config) RecoveryStagger() time.Duration {
	return time.Duration(c.Recovery.StaggerSeconds) * time.Second
}

// RecoveryTick returns the polling interval of the recovery loop.
func (c *Config) RecoveryTick() time.Duration {
	return time.Duration(c.Recovery.TickSeconds) * time.Second
}

// TrackerLocation returns the fixed zone used when stamping link creation dates.
func (c *Config) TrackerLocation() *time.Location {
	offset := c.Tracker.UTCOffsetHours
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*60*60)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
