// Package store is the local write-ahead cache of starred message ids.
//
// The cache is keyed by chat id and is never authoritative: on chat open the
// session merges it with the gateway's canonical starred set.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("starred store closed")

// Store persists per-chat starred message ids in SQLite.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path. An empty path
// or ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	memory := path == "" || path == ":memory:"
	var dsn string
	if memory {
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open starred cache: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to starred cache: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS starred_messages (
			chat_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (chat_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS starred_messages_chat_idx ON starred_messages(chat_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize starred schema: %w", err)
		}
	}
	return nil
}

func (s *Store) handle() (*sql.DB, func(), error) {
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	return s.db, s.mu.RUnlock, nil
}

// Starred returns the cached starred ids of chatID, sorted.
func (s *Store) Starred(ctx context.Context, chatID string) ([]string, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("chat id is required")
	}
	db, release, err := s.handle()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, `
		SELECT message_id FROM starred_messages
		WHERE chat_id = ?
		ORDER BY message_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query starred messages: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan starred message: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read starred messages: %w", err)
	}
	return ids, nil
}

// IsStarred reports whether messageID is cached as starred in chatID.
func (s *Store) IsStarred(ctx context.Context, chatID, messageID string) (bool, error) {
	db, release, err := s.handle()
	if err != nil {
		return false, err
	}
	defer release()

	var n int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM starred_messages WHERE chat_id = ? AND message_id = ?
	`, chatID, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check starred message: %w", err)
	}
	return n > 0, nil
}

// SetStarred records or clears one starred id.
func (s *Store) SetStarred(ctx context.Context, chatID, messageID string, starred bool) error {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(messageID) == "" {
		return errors.New("chat id and message id are required")
	}
	db, release, err := s.handle()
	if err != nil {
		return err
	}
	defer release()

	return withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		var execErr error
		if starred {
			_, execErr = db.ExecContext(ctx, `
				INSERT INTO starred_messages (chat_id, message_id, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(chat_id, message_id) DO UPDATE SET updated_at = excluded.updated_at
			`, chatID, messageID, now())
		} else {
			_, execErr = db.ExecContext(ctx, `
				DELETE FROM starred_messages WHERE chat_id = ? AND message_id = ?
			`, chatID, messageID)
		}
		if execErr != nil {
			return fmt.Errorf("failed to update starred message: %w", execErr)
		}
		return nil
	})
}

// Replace makes ids the complete cached set for chatID.
func (s *Store) Replace(ctx context.Context, chatID string, ids []string) error {
	if strings.TrimSpace(chatID) == "" {
		return errors.New("chat id is required")
	}
	db, release, err := s.handle()
	if err != nil {
		return err
	}
	defer release()

	unique := dedupe(ids)
	return withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		return transaction(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM starred_messages WHERE chat_id = ?`, chatID); err != nil {
				return fmt.Errorf("failed to clear starred messages: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO starred_messages (chat_id, message_id, updated_at) VALUES (?, ?, ?)
			`)
			if err != nil {
				return fmt.Errorf("failed to prepare starred insert: %w", err)
			}
			defer stmt.Close()

			stamp := now()
			for _, id := range unique {
				if _, err := stmt.ExecContext(ctx, chatID, id, stamp); err != nil {
					return fmt.Errorf("failed to store starred message: %w", err)
				}
			}
			return nil
		})
	})
}

// Chats returns every chat id with at least one cached star.
func (s *Store) Chats(ctx context.Context) ([]string, error) {
	db, release, err := s.handle()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT chat_id FROM starred_messages ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query starred chats: %w", err)
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan starred chat: %w", err)
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
