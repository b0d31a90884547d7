package config

// Journal backends accepted by journal.backend.
const (
	JournalBackendJSON     = "json"
	JournalBackendSQLite   = "sqlite"
	JournalBackendPostgres = "postgres"
)

const (
	defaultConfigPath             = "~/.config/linkrelay/config.toml"
	defaultJournalPath            = "~/.local/share/linkrelay/tasks_journal.json"
	defaultSQLitePath             = "~/.local/share/linkrelay/journal.db"
	defaultLogDir                 = "~/.local/share/linkrelay/logs"
	defaultAPIBind                = "0.0.0.0:8000"
	defaultCatalogFolder          = "/КАТАЛОГ"
	defaultTrackerLinkField       = "subject"
	defaultTrackerUTCOffsetHours  = 3
	defaultRecoveryDailyAt        = "23:00"
	defaultRecoveryStaggerSeconds = 4
	defaultRecoveryMaxRecords     = 20000
	defaultRecoveryTickSeconds    = 1
	defaultRequestTimeoutSeconds  = 30
	defaultShutdownTimeoutSeconds = 15
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultMetricsNamespace       = "linkrelay"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			JournalPath: defaultJournalPath,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Nextcloud: Nextcloud{
			CatalogFolder: defaultCatalogFolder,
		},
		Tracker: Tracker{
			LinkField:      defaultTrackerLinkField,
			UTCOffsetHours: defaultTrackerUTCOffsetHours,
		},
		Journal: Journal{
			Backend:    JournalBackendJSON,
			SQLitePath: defaultSQLitePath,
		},
		Recovery: Recovery{
			Enabled:        true,
			DailyAt:        defaultRecoveryDailyAt,
			StaggerSeconds: defaultRecoveryStaggerSeconds,
			MaxRecords:     defaultRecoveryMaxRecords,
			TickSeconds:    defaultRecoveryTickSeconds,
		},
		HTTP: HTTP{
			RequestTimeout:  defaultRequestTimeoutSeconds,
			ShutdownTimeout: defaultShutdownTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: Metrics{
			Namespace: defaultMetricsNamespace,
		},
	}
}
