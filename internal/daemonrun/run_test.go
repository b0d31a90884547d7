package daemonrun

import (
	"os"
	"path/filepath"
	"testing"

	"linkrelay/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "linkrelay-1.log")
	second := filepath.Join(dir, "linkrelay-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "linkrelay.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "linkrelay-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestPIDRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if ReadPID(cfg) != 0 {
		t.Fatal("expected no pid before write")
	}
	if err := writePIDFile(PIDPath(cfg)); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	if got := ReadPID(cfg); got != os.Getpid() {
		t.Fatalf("ReadPID = %d, want %d", got, os.Getpid())
	}
}
