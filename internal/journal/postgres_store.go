package journal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresTable = "linkrelay_bindings"

// PostgresStore keeps the journal in a Postgres table shared by every replica.
type PostgresStore struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	stmt := `CREATE TABLE IF NOT EXISTS ` + postgresTable + ` (
		seq INTEGER NOT NULL,
		task_id TEXT PRIMARY KEY,
		folder_path TEXT NOT NULL,
		share_id TEXT NULL
	)`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Journal, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.pool.Query(ctx, `SELECT task_id, folder_path, share_id FROM `+postgresTable+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	defer rows.Close()

	j := New()
	for rows.Next() {
		var (
			b       Binding
			shareID *string
		)
		if err := rows.Scan(&b.TaskID, &b.FolderPath, &shareID); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		if shareID != nil {
			b.ShareID = *shareID
		}
		j.Put(b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return j, nil
}

// Save replaces the table contents inside one transaction using COPY.
func (s *PostgresStore) Save(ctx context.Context, j *Journal) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM `+postgresTable); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	records := j.Records()
	rows := make([][]any, 0, len(records))
	for i, b := range records {
		var shareID *string
		if b.ShareID != "" {
			id := b.ShareID
			shareID = &id
		}
		rows = append(rows, []any{int32(i), b.TaskID, b.FolderPath, shareID})
	}
	if len(rows) > 0 {
		columns := []string{"seq", "task_id", "folder_path", "share_id"}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{postgresTable}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
