package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/ping"
)

// StateKey holds the last acknowledged heartbeat day.
const StateKey = "heartbeat.last_sent"

const schema = `
CREATE TABLE IF NOT EXISTS heartbeat_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore is a key/value store in a private SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path. The file and its
// directory are created readable by the owner only.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("localstore: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("localstore: create file: %w", err)
	}
	f.Close()

	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore uses an already opened database, creating the table.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM heartbeat_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("localstore: set %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent writes value only if key has no value yet, or a blank one, and
// returns the value that is stored afterwards.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("localstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO heartbeat_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		WHERE trim(heartbeat_kv.value) = ''`,
		key, value); err != nil {
		return "", fmt.Errorf("localstore: insert %s: %w", key, err)
	}

	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM heartbeat_kv WHERE key = ?`, key).Scan(&stored); err != nil {
		return "", fmt.Errorf("localstore: read back %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("localstore: commit: %w", err)
	}
	return stored, nil
}

// LoadState reads the ping state. A missing or malformed day reads as
// never sent.
func (s *SQLiteStore) LoadState(ctx context.Context) (ping.State, error) {
	return loadState(ctx, s)
}

// SaveState persists the ping state.
func (s *SQLiteStore) SaveState(ctx context.Context, state ping.State) error {
	return s.Set(ctx, StateKey, string(state.LastSent))
}

type getter interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

func loadState(ctx context.Context, g getter) (ping.State, error) {
	raw, ok, err := g.Get(ctx, StateKey)
	if err != nil || !ok {
		return ping.State{}, err
	}
	day, err := heartbeat.ParseDate(raw)
	if err != nil {
		return ping.State{}, nil
	}
	return ping.State{LastSent: day}, nil
}
