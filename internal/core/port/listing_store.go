package port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// ListingStorePort - хранилище объявлений и множеств уже показанных идентификаторов.
// Методы записи возвращают ошибки, обернутые в domain.ErrStorage.
type ListingStorePort interface {
	// UpsertListing вставляет или полностью перезаписывает объявление.
	// Возвращает true, если записи с таким id раньше не было.
	UpsertListing(ctx context.Context, listing domain.Listing) (bool, error)

	// GetSeenIDs никогда не возвращает ошибку: при сбое хранилища отдается пустое множество
	GetSeenIDs(ctx context.Context, userID string) domain.IDSet

	// SaveSeenIDs полностью заменяет множество пользователя переданным
	SaveSeenIDs(ctx context.Context, userID string, ids domain.IDSet) error

	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingsFilter) ([]domain.Listing, error)

	DeleteListingsOlderThan(ctx context.Context, days int) (int64, error)
	GetStatistics(ctx context.Context) (*domain.StoreStatistics, error)
}
