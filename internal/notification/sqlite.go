package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shardfleet/shardfleet/internal/logging"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notifications (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       TEXT UNIQUE,
	event_type     TEXT NOT NULL,
	source         TEXT NOT NULL,
	severity       TEXT NOT NULL DEFAULT '',
	tenant_id      TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	utc            TEXT NOT NULL,
	envelope       TEXT NOT NULL,
	stored_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_event_type ON notifications(event_type);
CREATE INDEX IF NOT EXISTS idx_notifications_source ON notifications(source);
`

// SQLiteStore persists notifications in a SQLite database. Events are keyed
// by EventId, so a redelivered event is stored once. Events without an
// EventId are always inserted.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.Global()
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "notification.sqlite"),
	}, nil
}

// Append inserts env unless a row with the same EventId exists
func (s *SQLiteStore) Append(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var eventID sql.NullString
	if env.EventID != "" {
		eventID = sql.NullString{String: env.EventID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications
			(event_id, event_type, source, severity, tenant_id, correlation_id, utc, envelope)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		eventID,
		env.EventType,
		env.Source,
		env.Severity,
		env.TenantID,
		env.CorrelationID,
		env.Utc.UTC().Format(time.RFC3339Nano),
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("Notification already stored", "event_id", env.EventID)
		return nil
	}

	s.logger.Info("Stored event", "event_type", env.EventType, "source", env.Source)
	return nil
}

// Recent returns up to limit notifications, newest first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT envelope FROM notifications ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

// Count returns the number of stored notifications
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
