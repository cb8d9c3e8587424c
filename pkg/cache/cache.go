// Package cache persists the active transcript to on-device storage so the
// last-seen conversation renders instantly on startup, before any network
// call resolves. It is a full-snapshot store: every save overwrites the
// whole list under one fixed key, last writer wins, and callers treat it as
// eventually consistent with in-memory state, never authoritative.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saiaslabs/saias/pkg/chat"
)

// historyKey is the single storage key the transcript lives under.
const historyKey = "saias_chat_history"

// Store is a SQLite-backed snapshot store. Use ":memory:" for an in-memory
// database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key        TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save overwrites the cached transcript with the given message list.
func (s *Store) Save(ctx context.Context, messages []*chat.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		historyKey, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Load returns the cached transcript, or an empty list when nothing has
// been cached yet.
func (s *Store) Load(ctx context.Context) ([]*chat.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE key = ?`, historyKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []*chat.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	var messages []*chat.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if messages == nil {
		messages = []*chat.Message{}
	}
	return messages, nil
}

// Clear removes the cached transcript regardless of content.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, historyKey); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
