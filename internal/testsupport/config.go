package testsupport

import (
	"path/filepath"
	"testing"

	"linkrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Remote URLs point at unroutable placeholders until WithRemote is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.JournalPath = filepath.Join(base, "state", "tasks_journal.json")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Journal.SQLitePath = filepath.Join(base, "state", "journal.db")
	cfgVal.Nextcloud.URL = "http://nextcloud.invalid"
	cfgVal.Nextcloud.Username = "relay"
	cfgVal.Nextcloud.Password = "secret"
	cfgVal.Tracker.URL = "http://tracker.invalid"
	cfgVal.Tracker.APIKey = "token"
	cfgVal.HTTP.RequestTimeout = 5
	cfgVal.HTTP.ShutdownTimeout = 2

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithRemote points both the Nextcloud and tracker URLs at r.
func WithRemote(r *Remote) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Nextcloud.URL = r.URL()
		b.cfg.Tracker.URL = r.URL()
	}
}

// WithJournalBackend selects the journal backend.
func WithJournalBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Backend = backend
	}
}

// WithAPIToken sets the admin API bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
