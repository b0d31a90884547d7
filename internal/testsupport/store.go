package testsupport

import (
	"context"
	"testing"

	"linkrelay/internal/config"
	"linkrelay/internal/journal"
)

// MustOpenStore opens the configured journal store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) journal.Store {
	t.Helper()

	store, err := journal.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedJournal saves the bindings, in order, as the whole journal.
func SeedJournal(t testing.TB, store journal.Store, bindings ...journal.Binding) {
	t.Helper()
	j := journal.New()
	for _, b := range bindings {
		j.Put(b)
	}
	if err := store.Save(context.Background(), j); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
}

// LoadJournal reads the journal or fails the test.
func LoadJournal(t testing.TB, store journal.Store) *journal.Journal {
	t.Helper()
	j, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load journal: %v", err)
	}
	return j
}
