package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Cache is the synchronous local key-value store a Store persists to.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// SQLiteCache keeps values in a single-table SQLite database on disk.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (and creates if needed) the cache database at path.
// ":memory:" gives a private in-memory cache.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	memory := path == ":memory:"
	dsn := path
	if !memory {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_journal_mode=WAL&_busy_timeout=10000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy_timeout: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create local_storage table: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(key string) ([]byte, bool, error) {
	var value string
	err := c.db.QueryRow("SELECT value FROM local_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s from local cache: %w", key, err)
	}
	return []byte(value), true, nil
}

func (c *SQLiteCache) Set(key string, value []byte) error {
	_, err := c.db.Exec(`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("write %s to local cache: %w", key, err)
	}
	return nil
}

// DB exposes the database so other local tables can share the file.
func (c *SQLiteCache) DB() *sql.DB {
	return c.db
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: map[string][]byte{}}
}

func (c *MemoryCache) Get(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *MemoryCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = append([]byte(nil), value...)
	return nil
}
