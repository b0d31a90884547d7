package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"linkrelay/internal/journal"
	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
)

const watchDebounce = 250 * time.Millisecond

// journalWatcher follows the JSON journal file and keeps the record gauge in
// step with it, including edits made outside the daemon.
type journalWatcher struct {
	store   *journal.FileStore
	metrics *observability.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newJournalWatcher(store *journal.FileStore, metrics *observability.Metrics, logger *slog.Logger) *journalWatcher {
	return &journalWatcher{
		store:   store,
		metrics: metrics,
		logger:  logging.NewComponentLogger(logger, "journal-watch"),
	}
}

// Start watches the journal's directory; the file itself is replaced on
// every save, so a file watch would go stale.
func (w *journalWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(w.store.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.wg.Add(1)
	go w.run(ctx, watcher)
	return nil
}

// Wait blocks until the watch loop has exited.
func (w *journalWatcher) Wait() {
	w.wg.Wait()
}

func (w *journalWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	target := filepath.Clean(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("journal watch error", logging.Error(err))
		case <-fire:
			fire = nil
			w.refresh(ctx)
		}
	}
}

func (w *journalWatcher) refresh(ctx context.Context) {
	j, err := w.store.Load(ctx)
	if err != nil {
		logging.WarnWithContext(w.logger, "journal reload failed", "journal_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the journal file is valid JSON"),
			logging.String(logging.FieldImpact, "journal size metric is stale"),
		)
		return
	}
	w.metrics.SetJournalRecords(j.Len())
	w.logger.Debug("journal changed on disk", logging.Int("records", j.Len()))
}
