package port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// AdmissionStorePort хранит записи лимита пользователей.
// Get возвращает (nil, nil), если записи нет.
type AdmissionStorePort interface {
	Get(ctx context.Context, userID string) (*domain.AdmissionRecord, error)
	Save(ctx context.Context, record domain.AdmissionRecord) error
	// Reset сбрасывает время последнего запуска и счетчик за сегодня, общий счетчик сохраняется
	Reset(ctx context.Context, userID string) error
	// Global считает агрегаты; today - текущий день в формате domain.CountersDayLayout
	Global(ctx context.Context, today string) (*domain.AdmissionGlobalStats, error)
}
