package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/travelbot/internal/model"
)

// SQLiteStore backs attempt records and the reply ledger with a local
// SQLite database so retry and rate-limit state survives restarts.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

type attemptRow struct {
	MessageID   string    `db:"message_id"`
	Count       int       `db:"count"`
	LastAttempt time.Time `db:"last_attempt"`
	LastReason  string    `db:"last_reason"`
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, messageID string) (*model.AttemptRecord, error) {
	var row attemptRow
	err := s.db.GetContext(ctx, &row,
		"SELECT message_id, count, last_attempt, last_reason FROM attempts WHERE message_id = ?",
		messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading attempt record %s: %w", messageID, err)
	}

	return &model.AttemptRecord{
		MessageID:   row.MessageID,
		Count:       row.Count,
		LastAttempt: row.LastAttempt,
		LastReason:  row.LastReason,
	}, nil
}

func (s *SQLiteStore) PutAttempt(ctx context.Context, rec model.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts (message_id, count, last_attempt, last_reason)
		 VALUES (?, ?, ?, ?)`,
		rec.MessageID, rec.Count, rec.LastAttempt, rec.LastReason,
	)
	if err != nil {
		return fmt.Errorf("writing attempt record %s: %w", rec.MessageID, err)
	}
	return nil
}

func (s *SQLiteStore) ClearAttempt(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM attempts WHERE message_id = ?", messageID,
	)
	if err != nil {
		return fmt.Errorf("clearing attempt record %s: %w", messageID, err)
	}
	return nil
}

func (s *SQLiteStore) CountReplies(ctx context.Context, recipient string, since time.Time) (int, error) {
	// Lazy TTL expiry: entries that fell out of every possible window
	// are dropped on access instead of by a background sweep.
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM reply_ledger WHERE recipient = ? AND sent_at < ?",
		recipient, since,
	); err != nil {
		return 0, fmt.Errorf("pruning reply ledger for %s: %w", recipient, err)
	}

	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM reply_ledger WHERE recipient = ? AND sent_at >= ?",
		recipient, since,
	)
	if err != nil {
		return 0, fmt.Errorf("counting replies for %s: %w", recipient, err)
	}
	return count, nil
}

func (s *SQLiteStore) RecordReply(ctx context.Context, recipient string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO reply_ledger (recipient, sent_at) VALUES (?, ?)",
		recipient, at,
	)
	if err != nil {
		return fmt.Errorf("recording reply to %s: %w", recipient, err)
	}
	return nil
}
