package usecases_port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// RunFetchUseCase - один цикл поиска новых объявлений для пользователя
type RunFetchUseCase interface {
	Execute(ctx context.Context, userID string, mode domain.FetchMode) (*domain.FetchResult, error)
}
