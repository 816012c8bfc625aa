package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/protocol"
)

// ErrConflict means the number was already present in the session, typically
// because a concurrent controller committed it first.
var ErrConflict = errors.New("number already called")

// Store is the SQLite-backed session document. Every mutation is a single
// transaction, so observers only ever see the document before or after a
// complete draw or reset.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the session store according to config. Mode "ephemeral"
// keeps the document in memory for the lifetime of the process.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	var dsn string
	if cfg.Mode == "ephemeral" {
		dsn = "file::memory:"
	} else {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; commits become atomic
	// check-and-append operations without long-lived application locks.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    revision INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS draws (
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    number INTEGER NOT NULL,
    called_at TIMESTAMP NOT NULL,
    PRIMARY KEY(session_id, number),
    UNIQUE(session_id, position),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Snapshot returns the current session document, creating empty state on
// first access to a session identifier.
func (s *Store) Snapshot(ctx context.Context, sessionID string) (protocol.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return protocol.Snapshot{}, err
	}
	snap, err := s.readSnapshot(ctx, tx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return snap, tx.Commit()
}

// Append atomically verifies the number is absent and appends it, returning
// the resulting snapshot. A concurrent duplicate yields ErrConflict with no
// state change.
func (s *Store) Append(ctx context.Context, sessionID string, number int) (protocol.Snapshot, error) {
	if number < 1 {
		return protocol.Snapshot{}, fmt.Errorf("invalid number %d", number)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return protocol.Snapshot{}, err
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM draws WHERE session_id = ? AND number = ?`,
		sessionID, number).Scan(&exists)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	if exists > 0 {
		return protocol.Snapshot{}, ErrConflict
	}

	now := s.clock().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO draws(session_id, position, number, called_at)
		 SELECT ?, COUNT(1), ?, ? FROM draws WHERE session_id = ?`,
		sessionID, number, now, sessionID)
	if err != nil {
		// The primary key is the transactional backstop for the
		// explicit check above.
		if isConstraintViolation(err) {
			return protocol.Snapshot{}, ErrConflict
		}
		return protocol.Snapshot{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET revision = revision + 1, updated_at = ? WHERE session_id = ?`,
		now, sessionID); err != nil {
		return protocol.Snapshot{}, err
	}

	snap, err := s.readSnapshot(ctx, tx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return protocol.Snapshot{}, err
	}
	return snap, nil
}

// Reset atomically replaces the session document with empty state.
func (s *Store) Reset(ctx context.Context, sessionID string) (protocol.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return protocol.Snapshot{}, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM draws WHERE session_id = ?`, sessionID); err != nil {
		return protocol.Snapshot{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET revision = revision + 1, updated_at = ? WHERE session_id = ?`,
		s.clock().UTC(), sessionID); err != nil {
		return protocol.Snapshot{}, err
	}
	snap, err := s.readSnapshot(ctx, tx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return snap, tx.Commit()
}

func (s *Store) ensureSession(ctx context.Context, tx *sql.Tx, sessionID string) error {
	now := s.clock().UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, revision, created_at, updated_at)
		 VALUES(?, 0, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, now, now)
	return err
}

func (s *Store) readSnapshot(ctx context.Context, tx *sql.Tx, sessionID string) (protocol.Snapshot, error) {
	snap := protocol.Snapshot{SessionID: sessionID, CalledNumbers: []int{}}

	var updated string
	err := tx.QueryRowContext(ctx,
		`SELECT revision, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&snap.Revision, &updated)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		snap.UpdatedAt = ts
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT number FROM draws WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return protocol.Snapshot{}, err
		}
		snap.CalledNumbers = append(snap.CalledNumbers, n)
	}
	if err := rows.Err(); err != nil {
		return protocol.Snapshot{}, err
	}
	if len(snap.CalledNumbers) > 0 {
		current := snap.CalledNumbers[len(snap.CalledNumbers)-1]
		snap.CurrentNumber = &current
	}
	return snap, nil
}

func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
