package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/relay/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	messages      TEXT NOT NULL DEFAULT '[]',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMP NOT NULL
);
`

// SQLiteStore persists conversation history in SQLite. History is stored as
// an ordered JSON array of messages so external summarization and debugging
// tooling can read it directly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sessions: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time; serialize access at the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadHistory returns the ordered message history for a conversation.
func (s *SQLiteStore) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversations WHERE id = ?`, conversationID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var msgs []models.Message
	if err := json.Unmarshal([]byte(payload), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", conversationID, err)
	}
	return msgs, nil
}

// SaveHistory replaces the stored history and accumulates token usage.
func (s *SQLiteStore) SaveHistory(ctx context.Context, conversationID string, msgs []models.Message, usage models.TokenUsage) error {
	if msgs == nil {
		msgs = []models.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %w", conversationID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, messages, input_tokens, output_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			messages      = excluded.messages,
			input_tokens  = conversations.input_tokens + excluded.input_tokens,
			output_tokens = conversations.output_tokens + excluded.output_tokens,
			updated_at    = excluded.updated_at
	`, conversationID, string(payload), usage.InputTokens, usage.OutputTokens, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Usage returns the accumulated token usage for a conversation.
func (s *SQLiteStore) Usage(ctx context.Context, conversationID string) (models.TokenUsage, error) {
	var usage models.TokenUsage
	err := s.db.QueryRowContext(ctx,
		`SELECT input_tokens, output_tokens FROM conversations WHERE id = ?`, conversationID,
	).Scan(&usage.InputTokens, &usage.OutputTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TokenUsage{}, nil
	}
	if err != nil {
		return models.TokenUsage{}, fmt.Errorf("failed to load usage: %w", err)
	}
	return usage, nil
}
