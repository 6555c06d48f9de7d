package postgres

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/port"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id            TEXT PRIMARY KEY,
		source        TEXT             NOT NULL DEFAULT 'cian',
		price_monthly DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_text    TEXT             NOT NULL DEFAULT '',
		area_text     TEXT             NOT NULL DEFAULT '',
		area_numeric  DOUBLE PRECISION NOT NULL DEFAULT 0,
		address       TEXT             NOT NULL DEFAULT '',
		latitude      DOUBLE PRECISION,
		longitude     DOUBLE PRECISION,
		geohash       TEXT             NOT NULL DEFAULT '',
		floor         TEXT             NOT NULL DEFAULT '',
		floor_total   TEXT             NOT NULL DEFAULT '',
		category_text TEXT             NOT NULL DEFAULT '',
		description   TEXT             NOT NULL DEFAULT '',
		phones        TEXT[]           NOT NULL DEFAULT '{}',
		url           TEXT             NOT NULL DEFAULT '',
		photos        TEXT[]           NOT NULL DEFAULT '{}',
		added_time    TEXT             NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source)`,

	`CREATE TABLE IF NOT EXISTS seen_listings (
		user_id       TEXT        NOT NULL,
		listing_id    TEXT        NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, listing_id)
	)`,

	`CREATE TABLE IF NOT EXISTS admission_records (
		user_id            TEXT PRIMARY KEY,
		last_fetch_at      TIMESTAMPTZ,
		last_attempt_at    TIMESTAMPTZ,
		last_attempt_ok    BOOLEAN     NOT NULL DEFAULT FALSE,
		fetch_count_today  INTEGER     NOT NULL DEFAULT 0,
		fetch_count_total  INTEGER     NOT NULL DEFAULT 0,
		failed_count_total INTEGER     NOT NULL DEFAULT 0,
		counters_day       DATE        NOT NULL DEFAULT CURRENT_DATE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS fetch_sessions (
		id            UUID PRIMARY KEY,
		user_id       TEXT        NOT NULL,
		mode          TEXT        NOT NULL,
		status        TEXT        NOT NULL DEFAULT 'running',
		started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at   TIMESTAMPTZ,
		total_parsed  INTEGER     NOT NULL DEFAULT 0,
		total_new     INTEGER     NOT NULL DEFAULT 0,
		total_saved   INTEGER     NOT NULL DEFAULT 0,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fetch_sessions_user ON fetch_sessions(user_id, started_at DESC)`,
}

// EnsureSchema создает таблицы сервиса, если их еще нет
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("ensure schema: pool cannot be nil")
	}

	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			if concurrentCreate(err) {
				continue
			}
			return fmt.Errorf("ensure schema: statement %d failed: %w", i+1, err)
		}
	}

	contextkeys.LoggerFromContext(ctx).Info("Database schema is up to date", port.Fields{
		"component":  "postgres",
		"statements": len(schemaStatements),
	})
	return nil
}

// concurrentCreate - другой экземпляр сервиса создал тот же объект одновременно с нами.
// IF NOT EXISTS не спасает от гонки по системным каталогам: 23505 (unique_violation) или 42P07 (duplicate_table).
func concurrentCreate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "42P07"
}
