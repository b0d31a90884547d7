package daemon_test

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"linkrelay/internal/daemon"
	"linkrelay/internal/logging"
	"linkrelay/internal/testsupport"
)

func newDaemon(t *testing.T, remote *testsupport.Remote) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(remote))
	cfg.Recovery.Enabled = false
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	remote := testsupport.NewRemote(t)
	d := newDaemon(t, remote)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.Address == "" {
		t.Fatalf("expected daemon to report running, got %+v", status)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	remote := testsupport.NewRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(remote))
	cfg.Recovery.Enabled = false

	first, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock refusal, got %v", err)
	}
}

func TestWebhookRoundTrip(t *testing.T) {
	remote := testsupport.NewRemote(t)
	d := newDaemon(t, remote)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	body := `{"event":"on_after_create","data":{"id":"42","name":"Foo","humanNumber":"7"}}`
	resp, err := http.Post("http://"+d.Addr()+"/crm/tasks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	d.Queue().Wait()
	b, ok := testsupport.LoadJournal(t, d.Store()).Get("42")
	if !ok || b.ShareID != "101" || b.FolderPath != "/КАТАЛОГ/7. Foo" {
		t.Fatalf("unexpected binding %+v (present=%v)", b, ok)
	}
}

func TestJournalFileCreatedEmptyAtStartup(t *testing.T) {
	remote := testsupport.NewRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(remote))
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	data, err := os.ReadFile(cfg.Paths.JournalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("expected empty journal object, got %q", data)
	}
}

func TestWatcherTracksExternalEdits(t *testing.T) {
	remote := testsupport.NewRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(remote))
	cfg.Recovery.Enabled = false
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	edited := `{"1": {"task_id": "1", "folder_path": "/C/a", "share_id": null}, "2": {"task_id": "2", "folder_path": "/C/b", "share_id": "5"}}`
	if err := os.WriteFile(cfg.Paths.JournalPath, []byte(edited), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if gaugeValue(t, d) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("journal gauge never reached 2 (last %v)", gaugeValue(t, d))
}

func gaugeValue(t *testing.T, d *daemon.Daemon) float64 {
	t.Helper()
	families, err := d.Metrics().Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if strings.HasSuffix(fam.GetName(), "journal_records") && len(fam.GetMetric()) > 0 {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}
