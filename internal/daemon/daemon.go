package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"linkrelay/internal/config"
	"linkrelay/internal/dispatch"
	"linkrelay/internal/folders"
	"linkrelay/internal/httpapi"
	"linkrelay/internal/intake"
	"linkrelay/internal/journal"
	"linkrelay/internal/links"
	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
	"linkrelay/internal/recovery"
	"linkrelay/internal/services/megaplan"
	"linkrelay/internal/services/nextcloud"
)

// Daemon owns the relay's long-running pieces and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   journal.Store
	metrics *observability.Metrics
	queue   *dispatch.Queue

	recovery *recovery.Scheduler
	api      *httpapi.Server
	server   *http.Server
	watcher  *journalWatcher

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	cancel   context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool            `json:"running"`
	PID            int             `json:"pid"`
	Address        string          `json:"address"`
	Journal        string          `json:"journal"`
	JournalRecords int             `json:"journal_records"`
	InflightJobs   int             `json:"inflight_jobs"`
	LockFilePath   string          `json:"lock_file"`
	Recovery       recovery.Status `json:"recovery"`
}

// New opens the journal and wires every component from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := journal.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)
	queue := dispatch.New(context.WithoutCancel(ctx), logger, metrics)
	cloud := nextcloud.NewConfiguredClient(cfg, metrics)
	tracker := megaplan.NewConfiguredClient(cfg, metrics)
	provisioner := links.NewProvisioner(cloud, tracker, store, logger, links.WithLocation(cfg.TrackerLocation()))

	handler, err := intake.NewHandler(intake.Dependencies{
		Store:    store,
		Folders:  folders.NewManager(cloud, logger),
		Links:    provisioner,
		Dispatch: queue,
		Catalog:  cfg.Nextcloud.CatalogFolder,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sweeper := recovery.New(store, provisioner, queue, recovery.OptionsFromConfig(cfg), logger, metrics)
	api := httpapi.New(httpapi.Dependencies{
		Intake:   handler,
		Store:    store,
		Recovery: sweeper,
		Jobs:     queue,
		Metrics:  metrics,
		Token:    cfg.Paths.APIToken,
		Logger:   logger,
	})

	lockPath := filepath.Join(cfg.Paths.LogDir, "linkrelay.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		metrics:  metrics,
		queue:    queue,
		recovery: sweeper,
		api:      api,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if fs, ok := store.(*journal.FileStore); ok {
		d.watcher = newJournalWatcher(fs, metrics, logger)
	}
	return d, nil
}

// Start acquires the instance lock, starts the HTTP listener, the journal
// watcher, and, when enabled, the recovery scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another linkrelay instance is already running")
	}

	listener, err := net.Listen("tcp", strings.TrimSpace(d.cfg.Paths.APIBind))
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.Paths.APIBind, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.listener = listener
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(d.logger, "http server error", "http_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			)
		}
	}()

	d.refreshJournalGauge(runCtx)
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "journal watcher unavailable", "journal_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "journal size metric only refreshes on restart"),
			)
		}
	}

	if d.cfg.Recovery.Enabled {
		d.recovery.Start(runCtx)
	} else {
		d.logger.Info("recovery sweep disabled", logging.String(logging.FieldEventType, "recovery_disabled"))
	}

	d.running.Store(true)
	d.logger.Info("linkrelay daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("journal", journal.Describe(d.store)),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts the HTTP server down, stops the scheduler, drains the dispatch
// queue within the shutdown timeout, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	timeout := d.cfg.ShutdownTimeout()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", logging.Error(err))
	}

	d.recovery.Stop()
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	if d.watcher != nil {
		d.watcher.Wait()
	}

	drained := make(chan struct{})
	go func() {
		d.queue.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logging.WarnWithContext(d.logger, "dispatch queue not drained before timeout", "queue_drain_timeout",
			logging.Int("inflight", d.queue.Inflight()),
			logging.String(logging.FieldImpact, "pending refreshes dropped; the next sweep retries them"),
		)
	}
	d.queue.Close()
	<-drained

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("linkrelay daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the journal.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Store exposes the journal store.
func (d *Daemon) Store() journal.Store {
	return d.store
}

// Queue exposes the dispatch queue.
func (d *Daemon) Queue() *dispatch.Queue {
	return d.queue
}

// Metrics exposes the metrics registry.
func (d *Daemon) Metrics() *observability.Metrics {
	return d.metrics
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Address:      d.Addr(),
		Journal:      journal.Describe(d.store),
		InflightJobs: d.queue.Inflight(),
		LockFilePath: d.lockPath,
		Recovery:     d.recovery.Status(),
	}
	if j, err := d.store.Load(ctx); err == nil {
		st.JournalRecords = j.Len()
	} else {
		d.logger.Warn("failed to read journal for status", logging.Error(err))
	}
	return st
}

func (d *Daemon) refreshJournalGauge(ctx context.Context) {
	j, err := d.store.Load(ctx)
	if err != nil {
		d.logger.Warn("journal unreadable at start", logging.Error(err))
		return
	}
	d.metrics.SetJournalRecords(j.Len())
}
