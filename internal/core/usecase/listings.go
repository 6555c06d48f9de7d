package usecase

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"fmt"
	"strings"
)

const (
	DefaultListingsLimit = 20
	MaxListingsLimit     = 200
)

// GetListingsUseCase - чтение сохраненных объявлений
type GetListingsUseCase struct {
	store port.ListingStorePort
}

func NewGetListingsUseCase(store port.ListingStorePort) *GetListingsUseCase {
	return &GetListingsUseCase{store: store}
}

func (uc *GetListingsUseCase) List(ctx context.Context, filter domain.ListingsFilter) ([]domain.Listing, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListingsLimit
	}
	if filter.Limit > MaxListingsLimit {
		filter.Limit = MaxListingsLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Source = strings.TrimSpace(filter.Source)

	listings, err := uc.store.ListListings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	return listings, nil
}

func (uc *GetListingsUseCase) Get(ctx context.Context, id string) (*domain.Listing, error) {
	listing, err := uc.store.GetListing(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return listing, nil
}

// CleanupListingsUseCase удаляет объявления, не обновлявшиеся больше заданного числа дней
type CleanupListingsUseCase struct {
	store port.ListingStorePort
}

func NewCleanupListingsUseCase(store port.ListingStorePort) *CleanupListingsUseCase {
	return &CleanupListingsUseCase{store: store}
}

func (uc *CleanupListingsUseCase) Execute(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("cleanup listings: older_than_days must be positive, got %d", olderThanDays)
	}

	deleted, err := uc.store.DeleteListingsOlderThan(ctx, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup listings: %w", err)
	}

	contextkeys.LoggerFromContext(ctx).Info("Old listings removed", port.Fields{
		"use_case":        "CleanupListings",
		"older_than_days": olderThanDays,
		"deleted":         deleted,
	})
	return deleted, nil
}

type GetStatisticsUseCase struct {
	store port.ListingStorePort
}

func NewGetStatisticsUseCase(store port.ListingStorePort) *GetStatisticsUseCase {
	return &GetStatisticsUseCase{store: store}
}

func (uc *GetStatisticsUseCase) Execute(ctx context.Context) (*domain.StoreStatistics, error) {
	stats, err := uc.store.GetStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("get statistics: %w", err)
	}
	return stats, nil
}
