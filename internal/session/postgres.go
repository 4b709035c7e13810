package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captcha/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS session_attributes (
	session_id TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, name)
);
CREATE INDEX IF NOT EXISTS idx_session_attributes_expires_at ON session_attributes (expires_at);
`

// PostgresStore persists session attributes in PostgreSQL, shared by every
// replica of the service.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration

	janitor *janitor
}

// NewPostgresStore connects a pool and creates the schema.
func NewPostgresStore(ctx context.Context, cfg models.SessionConfig) (*PostgresStore, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL sessions")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(min(cfg.Database.MaxIdleConns, int(poolCfg.MaxConns)))
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	s := &PostgresStore{pool: pool, ttl: cfg.TTL}
	if cfg.CleanupInterval > 0 {
		s.janitor = startJanitor("postgres", cfg.CleanupInterval, s.DeleteExpired)
	}
	return s, nil
}

func (p *PostgresStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return "", false, err
	}

	var v string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM session_attributes WHERE session_id = $1 AND name = $2 AND expires_at > now()`,
		sessionID, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session attribute: %w", err)
	}
	return v, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	expires := time.Now().Add(p.ttl)
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO session_attributes (session_id, name, value, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		sessionID, key, value, expires)
	batch.Queue(`UPDATE session_attributes SET expires_at = $2 WHERE session_id = $1`, sessionID, expires)

	if err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	}); err != nil {
		return fmt.Errorf("failed to write session attribute: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx,
		`DELETE FROM session_attributes WHERE session_id = $1 AND name = $2`, sessionID, key); err != nil {
		return fmt.Errorf("failed to delete session attribute: %w", err)
	}
	return nil
}

// DeleteExpired removes expired attributes and returns how many rows went.
func (p *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM session_attributes WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	if p.janitor != nil {
		p.janitor.stop()
	}
	p.pool.Close()
	return nil
}
