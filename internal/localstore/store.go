package localstore

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stemsi/exstem-client/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("localstore: key not found")

// Store is the durable advisory cache on the candidate's machine: device
// identifier, review-marker cache, last session id, submission timestamp and
// feedback flag. All of it is advisory; the remote session store wins on
// conflict. Uses SQLite with WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database under dir.
// This function is idempotent - safe to call multiple times.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under (scope, key), or ErrNotFound.
func (s *Store) Get(scope, key string) (string, error) {
	var v string
	err := s.db.QueryRow(
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, scope, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return v, nil
}

// Put upserts (scope, key) to value.
func (s *Store) Put(scope, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (scope, key, value, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (scope, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", scope, key, err)
	}
	return nil
}

// All returns every key-value pair under scope.
func (s *Store) All(scope string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ────────────────────────────────────────────────────────────────────────────
// Typed accessors
// ────────────────────────────────────────────────────────────────────────────

// DeviceID returns the persisted device identifier, or ErrNotFound.
func (s *Store) DeviceID() (string, error) {
	return s.Get(config.LocalKey.DeviceScope(), config.LocalKey.KeyDeviceID())
}

// SetDeviceID persists the device identifier for the lifetime of the profile.
func (s *Store) SetDeviceID(id string) error {
	return s.Put(config.LocalKey.DeviceScope(), config.LocalKey.KeyDeviceID(), id)
}

// ReviewMarkers returns the cached review markers for one exam+candidate,
// keyed by the reserved review key.
func (s *Store) ReviewMarkers(examID, candidateID string) (map[string]string, error) {
	return s.All(config.LocalKey.ReviewScope(examID, candidateID))
}

// PutReviewMarker caches one review marker synchronously so a refresh before
// the debounced network write fires does not lose it.
func (s *Store) PutReviewMarker(examID, candidateID, key, value string) error {
	return s.Put(config.LocalKey.ReviewScope(examID, candidateID), key, value)
}

// LastSessionID returns the last session id seen for one exam+candidate.
func (s *Store) LastSessionID(examID, candidateID string) (string, error) {
	return s.Get(config.LocalKey.SessionScope(examID, candidateID), config.LocalKey.KeyLastSessionID())
}

// SetLastSessionID records the session id issued by the remote store.
func (s *Store) SetLastSessionID(examID, candidateID, sessionID string) error {
	return s.Put(config.LocalKey.SessionScope(examID, candidateID), config.LocalKey.KeyLastSessionID(), sessionID)
}

// RecordSubmission records the local submission timestamp, part of the
// client-side audit trail.
func (s *Store) RecordSubmission(examID, candidateID string, at time.Time) error {
	return s.Put(config.LocalKey.SessionScope(examID, candidateID), config.LocalKey.KeySubmittedAt(), at.UTC().Format(time.RFC3339))
}

// FeedbackDone reports whether the post-submission feedback step completed.
func (s *Store) FeedbackDone(examID, candidateID string) bool {
	v, err := s.Get(config.LocalKey.SessionScope(examID, candidateID), config.LocalKey.KeyFeedbackDone())
	return err == nil && v == "true"
}

// SetFeedbackDone marks the feedback step as completed.
func (s *Store) SetFeedbackDone(examID, candidateID string) error {
	return s.Put(config.LocalKey.SessionScope(examID, candidateID), config.LocalKey.KeyFeedbackDone(), "true")
}
