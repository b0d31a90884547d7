package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"linkrelay/internal/fileutil"
)

const fileLockRetry = 25 * time.Millisecond

// FileStore keeps the journal in a single JSON file.
//
// An in-process mutex serializes goroutines and a flock on "<path>.lock"
// keeps CLI maintenance commands from interleaving with the daemon.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the journal file location.
func (s *FileStore) Path() string {
	return s.path
}

// Init creates an empty journal file when none exists.
func (s *FileStore) Init(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if _, err := os.Stat(s.path); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat journal: %w", err)
		}
		return s.write(New())
	})
}

// Load reads the journal. A missing file yields an empty journal.
func (s *FileStore) Load(ctx context.Context) (*Journal, error) {
	var out *Journal
	err := s.withLock(ctx, func() error {
		data, err := os.ReadFile(s.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				out = New()
				return nil
			}
			return fmt.Errorf("read journal: %w", err)
		}
		j := New()
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, j); err != nil {
				return fmt.Errorf("decode journal %s: %w", s.path, err)
			}
		}
		out = j
		return nil
	})
	return out, err
}

// Save overwrites the journal file with j.
func (s *FileStore) Save(ctx context.Context, j *Journal) error {
	if j == nil {
		j = New()
	}
	return s.withLock(ctx, func() error {
		return s.write(j)
	})
}

// Backup copies the current journal file to dest.
func (s *FileStore) Backup(ctx context.Context, dest string) error {
	return s.withLock(ctx, func() error {
		if err := fileutil.CopyFile(s.path, dest, 0o644); err != nil {
			return fmt.Errorf("backup journal: %w", err)
		}
		return nil
	})
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) write(j *Journal) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(j); err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	locked, err := s.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: %s is held by another process", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
