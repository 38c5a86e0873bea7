package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxxcyber/voicecart/internal/logger"
)

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  *logger.Logger
}

// Connect creates a new database connection pool
func Connect(ctx context.Context, databaseURL string, log *logger.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Configure pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log = logger.OrNop(log).With("component", "database")
	log.Info("database connected")
	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations applies pending migrations in version order
func RunMigrations(ctx context.Context, db *DB) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	versions := make([]int, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, version := range versions {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}
		if exists {
			continue
		}

		db.log.Info("applying migration", "version", version)
		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx, migrations[version]); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations maps a version to its SQL
var migrations = map[int]string{
	1: migration001,
	2: migration002,
}

const migration001 = `
-- Live items, one row per item id
CREATE TABLE IF NOT EXISTS list_items (
    user_id VARCHAR(64) NOT NULL,
    id VARCHAR(64) NOT NULL,
    name VARCHAR(120) NOT NULL,
    quantity INT NOT NULL CHECK (quantity >= 1),
    category VARCHAR(40) NOT NULL DEFAULT 'other',
    bought BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_list_items_user ON list_items(user_id);

-- Point-in-time copies written on every push and on archive
CREATE TABLE IF NOT EXISTS list_snapshots (
    id BIGSERIAL PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    reason VARCHAR(40) NOT NULL DEFAULT 'autosave',
    item_count INT NOT NULL DEFAULT 0,
    items JSONB NOT NULL,
    taken_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_list_snapshots_user ON list_snapshots(user_id, taken_at DESC);

-- Single current document per user
CREATE TABLE IF NOT EXISTS current_lists (
    user_id VARCHAR(64) PRIMARY KEY,
    items JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration002 = `
-- Mirror of the history ledger, keyed by canonical item name
CREATE TABLE IF NOT EXISTS remote_history (
    user_id VARCHAR(64) NOT NULL,
    item_key VARCHAR(120) NOT NULL,
    name VARCHAR(120) NOT NULL,
    count_adds INT NOT NULL DEFAULT 0,
    count_bought INT NOT NULL DEFAULT 0,
    accepts INT NOT NULL DEFAULT 0,
    rejects INT NOT NULL DEFAULT 0,
    last_added_at TIMESTAMPTZ,
    last_bought_at TIMESTAMPTZ,
    PRIMARY KEY (user_id, item_key)
);
`
