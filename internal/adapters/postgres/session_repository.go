package postgres

import (
	"cian-monitor-service/internal/core/domain"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionRepository ведет журнал циклов поиска в fetch_sessions
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionRepository(pool *pgxpool.Pool) (*PostgresSessionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres session repository: pool cannot be nil")
	}
	return &PostgresSessionRepository{pool: pool}, nil
}

func (r *PostgresSessionRepository) StartSession(ctx context.Context, userID string, mode domain.FetchMode) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO fetch_sessions (id, user_id, mode, status) VALUES ($1, $2, $3, 'running')`,
		id, userID, string(mode),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: start fetch session: %w", domain.ErrStorage, err)
	}
	return id, nil
}

func (r *PostgresSessionRepository) FinishSession(ctx context.Context, sessionID uuid.UUID, outcome domain.FetchOutcome, totals domain.FetchSessionTotals) error {
	var errText *string
	if totals.Error != "" {
		errText = &totals.Error
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE fetch_sessions
		SET status = $2, finished_at = NOW(),
		    total_parsed = $3, total_new = $4, total_saved = $5, error_message = $6
		WHERE id = $1`,
		sessionID, string(outcome), totals.TotalParsed, totals.TotalNew, totals.TotalSaved, errText,
	)
	if err != nil {
		return fmt.Errorf("%w: finish fetch session %s: %w", domain.ErrStorage, sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fetch session %s not found", domain.ErrStorage, sessionID)
	}
	return nil
}
