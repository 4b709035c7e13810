package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"captcha/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_attributes (
	session_id TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, name)
);
CREATE INDEX IF NOT EXISTS idx_session_attributes_expires_at ON session_attributes (expires_at);
`

// SQLiteStore persists session attributes in a SQLite database. Expiry is a
// unix-millisecond column refreshed for the whole session on every write.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	janitor *janitor
}

// NewSQLiteStore opens the database at dsn and creates the schema.
func NewSQLiteStore(cfg models.SessionConfig) (*SQLiteStore, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("connection string is required for SQLite sessions")
	}

	db, err := sql.Open("sqlite", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// :memory: databases shared.
	db.SetMaxOpenConns(1)
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: cfg.TTL, now: time.Now}
	if cfg.CleanupInterval > 0 {
		s.janitor = startJanitor("sqlite", cfg.CleanupInterval, s.DeleteExpired)
	}
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return "", false, err
	}

	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_attributes WHERE session_id = ? AND name = ? AND expires_at > ?`,
		sessionID, key, s.now().UnixMilli()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session attribute: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	expires := s.now().Add(s.ttl).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_attributes (session_id, name, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		sessionID, key, value, expires); err != nil {
		return fmt.Errorf("failed to write session attribute: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_attributes SET expires_at = ? WHERE session_id = ?`, expires, sessionID); err != nil {
		return fmt.Errorf("failed to refresh session expiry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_attributes WHERE session_id = ? AND name = ?`, sessionID, key); err != nil {
		return fmt.Errorf("failed to delete session attribute: %w", err)
	}
	return nil
}

// DeleteExpired removes expired attributes and returns how many rows went.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_attributes WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s.janitor != nil {
		s.janitor.stop()
	}
	return s.db.Close()
}
