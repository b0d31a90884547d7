package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"linkrelay/internal/config"
	"linkrelay/internal/daemon"
	"linkrelay/internal/journal"
	"linkrelay/internal/logging"
	"linkrelay/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	remote     *testsupport.Remote
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"NEXTCLOUD_URL", "NEXTCLOUD_USERNAME", "NEXTCLOUD_PASSWORD", "NEXTCLOUD_CSRF_TOKEN", "MEGAPLAN_API_URL", "MEGAPLAN_API_KEY", "LINKRELAY_API_TOKEN"} {
		t.Setenv(key, "")
	}

	remote := testsupport.NewRemote(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithRemote(remote)}, opts...)...)
	cfg.Recovery.Enabled = false

	configPath := filepath.Join(testsupport.BaseDir(cfg), "linkrelay.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, remote: remote}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func seedJournal(t *testing.T, env *cliTestEnv, bindings ...journal.Binding) {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.SeedJournal(t, store, bindings...)
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestJournalListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournal(t, env,
		journal.Binding{TaskID: "42", FolderPath: "/КАТАЛОГ/7. Foo", ShareID: "101"},
		journal.Binding{TaskID: "43", FolderPath: "/КАТАЛОГ/8. Bar"},
	)

	out, _, err := runCLI(t, env, "journal", "list")
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	requireContains(t, out, "/КАТАЛОГ/7. Foo")
	requireContains(t, out, "2 of 2 records")
	if strings.Index(out, "42") > strings.Index(out, "43") {
		t.Fatalf("expected journal order preserved:\n%s", out)
	}

	out, _, err = runCLI(t, env, "journal", "list", "--json", "-n", "1")
	if err != nil {
		t.Fatalf("journal list --json: %v", err)
	}
	requireContains(t, out, `"task_id": "43"`)
	requireContains(t, out, `"share_id": null`)

	out, _, err = runCLI(t, env, "journal", "show", "42")
	if err != nil {
		t.Fatalf("journal show: %v", err)
	}
	requireContains(t, out, "Share:  101")

	if _, _, err := runCLI(t, env, "journal", "show", "999"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestJournalForget(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournal(t, env,
		journal.Binding{TaskID: "42", FolderPath: "/C/a", ShareID: "101"},
		journal.Binding{TaskID: "43", FolderPath: "/C/b", ShareID: "102"},
	)

	out, _, err := runCLI(t, env, "journal", "forget", "42")
	if err != nil {
		t.Fatalf("journal forget: %v", err)
	}
	requireContains(t, out, "Forgot task 42")
	if len(env.remote.RevokedShares()) != 0 {
		t.Fatal("plain forget must not revoke")
	}

	if _, _, err := runCLI(t, env, "journal", "forget", "--revoke", "43"); err != nil {
		t.Fatalf("journal forget --revoke: %v", err)
	}
	if got := env.remote.RevokedShares(); len(got) != 1 || got[0] != "102" {
		t.Fatalf("expected share 102 revoked, got %v", got)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	if testsupport.LoadJournal(t, store).Len() != 0 {
		t.Fatal("expected empty journal")
	}
}

func TestJournalBackup(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournal(t, env, journal.Binding{TaskID: "42", FolderPath: "/C/a"})

	dest := filepath.Join(t.TempDir(), "backup.json")
	out, _, err := runCLI(t, env, "journal", "backup", dest)
	if err != nil {
		t.Fatalf("journal backup: %v", err)
	}
	requireContains(t, out, "Journal copied")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	requireContains(t, string(data), `"folder_path": "/C/a"`)
}

func startDaemon(t *testing.T, env *cliTestEnv) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(context.Background(), env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	return d
}

func TestStatusAndRecoveryAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("s3cret"))
	seedJournal(t, env, journal.Binding{TaskID: "42", FolderPath: "/C/a", ShareID: "7"})
	d := startDaemon(t, env)
	api := "http://" + d.Addr()

	out, _, err := runCLI(t, env, "--api", api, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[OK]")
	requireContains(t, out, "(1 records)")

	out, _, err = runCLI(t, env, "--api", api, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"journal_records": 1`)

	out, _, err = runCLI(t, env, "--api", api, "recovery", "run")
	if err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	requireContains(t, out, "scheduled 1 refreshes")
	d.Queue().Wait()
	if got := env.remote.RevokedShares(); len(got) != 1 || got[0] != "7" {
		t.Fatalf("expected old share revoked by the sweep, got %v", got)
	}
}

func TestStatusWithoutDaemonFallsBackToJournal(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournal(t, env, journal.Binding{TaskID: "42", FolderPath: "/C/a"})

	out, _, err := runCLI(t, env, "--api", "http://127.0.0.1:1", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR]")
	requireContains(t, out, "(1 records)")
}

func TestCheckReportsRemoteFailures(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "Nextcloud:")
	requireContains(t, stdout, "[OK]")

	env.remote.Set(func(r *testsupport.Remote) { r.PingStatus = http.StatusUnauthorized })
	stdout, _, err = runCLI(t, env, "check")
	if err == nil {
		t.Fatal("expected check to fail when the tracker rejects the key")
	}
	requireContains(t, err.Error(), "1 of")
	requireContains(t, stdout, "invalid api key")
}
