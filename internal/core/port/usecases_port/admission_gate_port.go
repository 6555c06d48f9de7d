package usecases_port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// AdmissionGateUseCase решает, может ли пользователь запустить поиск
type AdmissionGateUseCase interface {
	MayFetch(ctx context.Context, userID string) (bool, domain.AdmissionInfo)
	RecordFetch(ctx context.Context, userID string, success bool) error

	UserStats(ctx context.Context, userID string) (*domain.AdmissionUserStats, error)
	GlobalStats(ctx context.Context) (*domain.AdmissionGlobalStats, error)
	ResetUser(ctx context.Context, userID string) error
}
