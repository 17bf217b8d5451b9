// Package store is the local persistent key-value store backing the CMS
// collections and the remembered connection profiles.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/logging"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// KV is the key-value primitive the rest of the repo depends on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store is a KV on a single sqlite file.
type Store struct {
	db     *sql.DB
	logger *logging.ColoredLogger
}

var _ KV = (*Store)(nil)

// Open opens (creating if needed) the sqlite database at path.
func Open(path string, logger *logging.ColoredLogger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.WrapCode(err, errors.CodeStorageError, "create store directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorageError, "open store")
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if path != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			logger.ComponentWarn(logging.ComponentStore, "Failed to enable WAL mode", zap.Error(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapCode(err, errors.CodeStorageError, "create kv table")
	}

	logger.ComponentInfo(logging.ComponentStore, "Store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Get returns the value for key or a NotFoundError.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("key", key)
	}
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorageError, "read "+key)
	}
	return value, nil
}

// Set writes value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.WrapCode(err, errors.CodeStorageError, "write "+key)
	}
	s.logger.ComponentDebug(logging.ComponentStore, "Key written",
		zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return errors.WrapCode(err, errors.CodeStorageError, "delete "+key)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorageError, "list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.WrapCode(err, errors.CodeStorageError, "scan key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
