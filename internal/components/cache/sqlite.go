package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `create table if not exists page_cache (
	key text primary key,
	value text not null,
	expires_at integer not null
)`

// SQLiteStore persists pages on disk so a debugging session can be rerun
// against the same markup without hitting the site again.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func wrapOpen(err error) error {
	return fmt.Errorf("open sqlite cache: %w", err)
}

// OpenSQLiteStore opens (or creates) <dir>/pages.db, ":memory:" is accepted for tests.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	path := ":memory:"
	if dir != ":memory:" {
		err := os.MkdirAll(dir, 0777)
		if err != nil {
			return nil, wrapOpen(err)
		}
		path = filepath.Join(dir, "pages.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpen(err)
	}
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpen(err)
		}
	}
	_, err = db.Exec(sqliteSchema)
	if err != nil {
		db.Close()
		return nil, wrapOpen(err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool) {
	var value string
	var expiresAt int64
	err := s.db.QueryRowContext(
		ctx,
		"select value, expires_at from page_cache where key = ?",
		key,
	).Scan(&value, &expiresAt)
	if err != nil {
		return "", false
	}
	if s.now().UnixMilli() >= expiresAt {
		_, _ = s.db.ExecContext(ctx, "delete from page_cache where key = ?", key)
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into page_cache (key, value, expires_at) values (?, ?, ?)
		on conflict (key) do update set value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.now().Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite cache: set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "delete from page_cache where key = ?", key)
	if err != nil {
		return fmt.Errorf("sqlite cache: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx, "delete from page_cache where instr(key, ?) = 1", prefix)
	if err != nil {
		return fmt.Errorf("sqlite cache: delete prefix: %w", err)
	}
	return nil
}

// Prune drops every expired row and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "delete from page_cache where expires_at <= ?", s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite cache: prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
