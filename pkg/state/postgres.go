package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ledgersync/pkg/api"
	"ledgersync/pkg/syncer"

	_ "github.com/lib/pq"
)

// PostgresStore persists the watermark in a single-row PostgreSQL table,
// for deployments where several hosts take turns running the sync.
type PostgresStore struct {
	db   *sql.DB
	name string
}

// PostgresConfig holds connection configuration.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// Name distinguishes watermarks of independent sync pipelines sharing
	// one table. Defaults to "default".
	Name string

	// ConnectTimeout bounds the initial connectivity check.
	ConnectTimeout time.Duration
}

// NewPostgresStore connects, verifies connectivity and ensures the state
// table exists.
func NewPostgresStore(config PostgresConfig) (*PostgresStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("state: postgres DSN required")
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("state: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: pinging postgres: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS sync_state (
			name         TEXT PRIMARY KEY,
			cursor       TEXT NOT NULL DEFAULT '',
			last_seen_at TIMESTAMPTZ,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: creating sync_state table: %w", err)
	}

	return &PostgresStore{db: db, name: config.Name}, nil
}

// Load returns the stored watermark for this pipeline name.
func (s *PostgresStore) Load(ctx context.Context) (syncer.Watermark, bool, error) {
	const q = `SELECT cursor, last_seen_at FROM sync_state WHERE name = $1`

	var (
		cursor     string
		lastSeenAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, s.name).Scan(&cursor, &lastSeenAt)
	if err == sql.ErrNoRows {
		return syncer.Watermark{}, false, nil
	}
	if err != nil {
		return syncer.Watermark{}, false, fmt.Errorf("state: loading watermark: %w", err)
	}

	w := syncer.Watermark{Cursor: api.Cursor(cursor)}
	if lastSeenAt.Valid {
		w.LastSeenAt = lastSeenAt.Time
	}
	return w, !w.IsZero(), nil
}

// Save upserts the watermark for this pipeline name.
func (s *PostgresStore) Save(ctx context.Context, w syncer.Watermark) error {
	const q = `
		INSERT INTO sync_state (name, cursor, last_seen_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET cursor = EXCLUDED.cursor,
		    last_seen_at = EXCLUDED.last_seen_at,
		    updated_at = now()`

	var lastSeenAt sql.NullTime
	if !w.LastSeenAt.IsZero() {
		lastSeenAt = sql.NullTime{Time: w.LastSeenAt, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, q, s.name, string(w.Cursor), lastSeenAt); err != nil {
		return fmt.Errorf("state: saving watermark: %w", err)
	}
	return nil
}

// Close releases the database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
