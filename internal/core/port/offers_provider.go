package port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// OffersProviderPort - внешний API поиска объявлений.
// Повторы при временных сбоях - забота реализации, вызывающая сторона делает ровно один вызов.
type OffersProviderPort interface {
	SearchOffers(ctx context.Context) (*domain.SearchResult, error)
}
