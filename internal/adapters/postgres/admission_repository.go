package postgres

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAdmissionRepository реализует AdmissionStorePort для PostgreSQL
type PostgresAdmissionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAdmissionRepository(pool *pgxpool.Pool) (*PostgresAdmissionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres admission repository: pool cannot be nil")
	}
	return &PostgresAdmissionRepository{pool: pool}, nil
}

func (r *PostgresAdmissionRepository) Get(ctx context.Context, userID string) (*domain.AdmissionRecord, error) {
	query := `
		SELECT user_id, last_fetch_at, last_attempt_at, last_attempt_ok,
		       fetch_count_today, fetch_count_total, failed_count_total,
		       to_char(counters_day, 'YYYY-MM-DD'), created_at, updated_at
		FROM admission_records WHERE user_id = $1`

	var rec domain.AdmissionRecord
	var today, total, failed int32
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID, &rec.LastFetchAt, &rec.LastAttemptAt, &rec.LastAttemptOK,
		&today, &total, &failed,
		&rec.CountersDay, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		contextkeys.LoggerFromContext(ctx).Error("Failed to read admission record", err, port.Fields{
			"component": "PostgresAdmissionRepository",
			"user_id":   userID,
		})
		return nil, fmt.Errorf("PostgresAdmissionRepository: failed to get record for user %s: %w", userID, err)
	}
	rec.FetchCountToday, rec.FetchCountTotal, rec.FailedCountTotal = int(today), int(total), int(failed)
	return &rec, nil
}

func (r *PostgresAdmissionRepository) Save(ctx context.Context, rec domain.AdmissionRecord) error {
	query := `
		INSERT INTO admission_records (
			user_id, last_fetch_at, last_attempt_at, last_attempt_ok,
			fetch_count_today, fetch_count_total, failed_count_total,
			counters_day, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			last_fetch_at = EXCLUDED.last_fetch_at,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_attempt_ok = EXCLUDED.last_attempt_ok,
			fetch_count_today = EXCLUDED.fetch_count_today,
			fetch_count_total = EXCLUDED.fetch_count_total,
			failed_count_total = EXCLUDED.failed_count_total,
			counters_day = EXCLUDED.counters_day,
			updated_at = EXCLUDED.updated_at`

	now := time.Now()
	createdAt, updatedAt := rec.CreatedAt, rec.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	day := rec.CountersDay
	if day == "" {
		day = now.Format(domain.CountersDayLayout)
	}

	_, err := r.pool.Exec(ctx, query,
		rec.UserID, rec.LastFetchAt, rec.LastAttemptAt, rec.LastAttemptOK,
		rec.FetchCountToday, rec.FetchCountTotal, rec.FailedCountTotal,
		day, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save admission record for user %s: %w", domain.ErrStorage, rec.UserID, err)
	}
	return nil
}

func (r *PostgresAdmissionRepository) Reset(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE admission_records
		SET last_fetch_at = NULL, fetch_count_today = 0, updated_at = NOW()
		WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%w: reset admission record for user %s: %w", domain.ErrStorage, userID, err)
	}
	return nil
}

func (r *PostgresAdmissionRepository) Global(ctx context.Context, today string) (*domain.AdmissionGlobalStats, error) {
	var users, total, todayCount int64
	var last *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(fetch_count_total), 0),
		       COALESCE(SUM(fetch_count_today) FILTER (WHERE counters_day = $1::date), 0),
		       MAX(last_fetch_at)
		FROM admission_records`, today,
	).Scan(&users, &total, &todayCount, &last)
	if err != nil {
		return nil, fmt.Errorf("PostgresAdmissionRepository: failed to aggregate records: %w", err)
	}

	return &domain.AdmissionGlobalStats{
		TotalUsers:   int(users),
		TotalFetches: int(total),
		FetchesToday: int(todayCount),
		LastFetchAt:  last,
	}, nil
}
