package usecases_port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

type GetListingsUseCase interface {
	List(ctx context.Context, filter domain.ListingsFilter) ([]domain.Listing, error)
	Get(ctx context.Context, id string) (*domain.Listing, error)
}

type CleanupListingsUseCase interface {
	Execute(ctx context.Context, olderThanDays int) (int64, error)
}

type GetStatisticsUseCase interface {
	Execute(ctx context.Context) (*domain.StoreStatistics, error)
}
