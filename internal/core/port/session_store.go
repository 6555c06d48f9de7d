package port

import (
	"cian-monitor-service/internal/core/domain"
	"context"

	"github.com/google/uuid"
)

// SessionStorePort - журнал циклов поиска
type SessionStorePort interface {
	StartSession(ctx context.Context, userID string, mode domain.FetchMode) (uuid.UUID, error)
	FinishSession(ctx context.Context, sessionID uuid.UUID, outcome domain.FetchOutcome, totals domain.FetchSessionTotals) error
}
