package port

import (
	"cian-monitor-service/internal/core/domain"
	"context"
)

// FetchEventsPublisherPort отправляет результат цикла слою бота
type FetchEventsPublisherPort interface {
	PublishFetchResult(ctx context.Context, event domain.FetchResultEvent) error
}
