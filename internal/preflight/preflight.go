package preflight

import (
	"context"
	"log/slog"
	"path/filepath"

	"linkrelay/internal/config"
	"linkrelay/internal/logging"
	"linkrelay/internal/services/megaplan"
	"linkrelay/internal/services/nextcloud"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll checks local directories and both remote services for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return Run(ctx, cfg,
		nextcloud.NewConfiguredClient(cfg, nil),
		megaplan.NewConfiguredClient(cfg, nil),
	)
}

// Run evaluates the checks using the supplied remote clients.
func Run(ctx context.Context, cfg *config.Config, folders FolderProber, tracker TrackerPinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)}

	switch cfg.Journal.Backend {
	case config.JournalBackendJSON:
		results = append(results, CheckDirectoryAccess("Journal directory", filepath.Dir(cfg.Paths.JournalPath)))
	case config.JournalBackendSQLite:
		results = append(results, CheckDirectoryAccess("Journal directory", filepath.Dir(cfg.Journal.SQLitePath)))
	}

	results = append(results,
		CheckNextcloud(ctx, folders, cfg.Nextcloud.CatalogFolder),
		CheckTracker(ctx, tracker),
	)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// LogResults writes one line per check. Failures are logged as warnings.
func LogResults(logger *slog.Logger, results []Result) {
	if logger == nil {
		return
	}
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_ok"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "verify configuration and remote availability"),
			logging.String(logging.FieldImpact, "webhook processing may fail until resolved"),
		)
	}
}
