package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLite keeps entries in a single table guarded by a file lock for writers,
// so several processes can share one database file.
type SQLite struct {
	db    *sql.DB
	lock  *flock.Flock
	table string
	ttl   time.Duration
}

// OpenSQLite opens (or creates) the database at path. table namespaces the
// entries so sessions and wallets can share one file; ttl <= 0 keeps entries
// forever.
func OpenSQLite(path, lockPath, table string, ttl time.Duration) (*SQLite, error) {
	if table == "" {
		table = "sessions"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite session store: %w", err)
	}
	store := &SQLite{db: db, lock: flock.New(lockPath), table: table, ttl: ttl}

	// Concurrent openers race on the schema; the file lock serializes them.
	err = store.withLock(context.Background(), func() error {
		_, err := db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BLOB NOT NULL, updated_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);", table))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	_ = store.Prune()
	return store, nil
}

// sqliteDSN applies the pragmas on every pooled connection. busy_timeout
// comes first so the WAL switch waits instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes expired entries. Entries written without a ttl never expire.
func (s *SQLite) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	nowUnix := time.Now().UTC().Unix()
	_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE expires_at > 0 AND expires_at < ?", s.table), nowUnix)
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresUnix int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT value, expires_at FROM %s WHERE key = ?", s.table), key).Scan(&value, &expiresUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("session read: %w", err)
	}
	if expiresUnix > 0 && time.Now().UTC().Unix() > expiresUnix {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.withLock(ctx, func() error {
		now := time.Now().UTC()
		var expiresUnix int64
		if s.ttl > 0 {
			expiresUnix = now.Add(s.ttl).Unix()
		}
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value=excluded.value,
				updated_at=excluded.updated_at,
				expires_at=excluded.expires_at
		`, s.table), key, value, now.Unix(), expiresUnix)
		if err != nil {
			return fmt.Errorf("session write: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.withLock(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.table), key); err != nil {
			return fmt.Errorf("session delete: %w", err)
		}
		return nil
	})
}

func (s *SQLite) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock session store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock session store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
