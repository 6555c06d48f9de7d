package usecase

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/normalizer"
	"cian-monitor-service/internal/core/port"
	"cian-monitor-service/internal/core/port/usecases_port"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunFetchUseCase - один цикл: гейт -> провайдер -> нормализация -> разбиение на новые/виденные -> сохранение
type RunFetchUseCase struct {
	gate     usecases_port.AdmissionGateUseCase
	provider port.OffersProviderPort
	store    port.ListingStorePort
	sessions port.SessionStorePort         // может быть nil
	events   port.FetchEventsPublisherPort // может быть nil
	now      func() time.Time
}

type RunFetchOption func(*RunFetchUseCase)

func WithFetchClock(now func() time.Time) RunFetchOption {
	return func(uc *RunFetchUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func WithSessionStore(sessions port.SessionStorePort) RunFetchOption {
	return func(uc *RunFetchUseCase) { uc.sessions = sessions }
}

func WithFetchEventsPublisher(events port.FetchEventsPublisherPort) RunFetchOption {
	return func(uc *RunFetchUseCase) { uc.events = events }
}

func NewRunFetchUseCase(
	gate usecases_port.AdmissionGateUseCase,
	provider port.OffersProviderPort,
	store port.ListingStorePort,
	opts ...RunFetchOption,
) *RunFetchUseCase {
	uc := &RunFetchUseCase{
		gate:     gate,
		provider: provider,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute запускает цикл поиска для пользователя.
// Отказ гейта - не ошибка: возвращается результат с Blocked=true.
// Сбой провайдера возвращается как ошибка, обернутая в domain.ErrProviderUnavailable.
func (uc *RunFetchUseCase) Execute(ctx context.Context, userID string, mode domain.FetchMode) (*domain.FetchResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if mode != domain.FetchModeFull && mode != domain.FetchModeIncremental {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "RunFetch",
		"user_id":  userID,
		"mode":     string(mode),
	})
	ctx = contextkeys.ContextWithLogger(ctx, ucLogger)

	startedAt := uc.now()

	// 1. Гейт. При отказе никаких запросов к провайдеру и записей в хранилище
	allowed, admission := uc.gate.MayFetch(ctx, userID)
	if !allowed {
		ucLogger.Info("Fetch denied by admission gate", port.Fields{
			"wait_hours":   admission.WaitHours,
			"wait_minutes": admission.WaitMinutes,
		})
		result := &domain.FetchResult{
			UserID:    userID,
			Mode:      mode,
			Blocked:   true,
			Admission: admission,
			Listings:  []domain.Listing{},
			Stats:     domain.FetchStats{Timestamp: startedAt},
		}
		uc.publish(ctx, result, domain.FetchOutcomeBlocked, "")
		return result, nil
	}

	ucLogger.Info("Starting fetch cycle", port.Fields{"admission_status": string(admission.Status)})
	sessionID := uc.startSession(ctx, userID, mode)

	// 2. Множество уже показанных. В полном режиме снимок для разбиения пустой,
	// но объединение с прежним множеством при сохранении выполняется всегда
	seen := uc.store.GetSeenIDs(ctx, userID)
	snapshot := seen
	if mode == domain.FetchModeFull {
		snapshot = domain.NewIDSet()
	}

	// 3. Ровно один вызов провайдера
	searchResult, err := uc.provider.SearchOffers(ctx)

	// Дальше цикл доводится до конца, даже если вызывающий отменил контекст
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		ucLogger.Error("Offers provider call failed", err, nil)

		if recErr := uc.gate.RecordFetch(ctx, userID, false); recErr != nil {
			ucLogger.Error("Failed to record failed fetch", recErr, nil)
		}
		uc.finishSession(ctx, sessionID, domain.FetchOutcomeFailed, domain.FetchSessionTotals{Error: err.Error()})

		failed := &domain.FetchResult{
			SessionID: sessionID,
			UserID:    userID,
			Mode:      mode,
			Admission: admission,
			Listings:  []domain.Listing{},
			Stats: domain.FetchStats{
				Elapsed:   uc.now().Sub(startedAt),
				Timestamp: startedAt,
			},
		}
		uc.publish(ctx, failed, domain.FetchOutcomeFailed, err.Error())
		return nil, fmt.Errorf("run fetch for user %s: %w", userID, err)
	}

	if searchResult == nil {
		searchResult = &domain.SearchResult{}
	}

	// 4-5. Нормализация и разбиение
	all, fresh, current, dropped := partition(searchResult.Offers, snapshot)
	if dropped > 0 {
		ucLogger.Warn("Dropped records without id", port.Fields{"dropped": dropped})
	}

	// 6. Сохранение объявлений и объединенного множества показанных
	inserted, storeFailures := 0, 0
	for _, listing := range all {
		isNew, err := uc.store.UpsertListing(ctx, listing)
		if err != nil {
			storeFailures++
			ucLogger.Error("Failed to upsert listing", err, port.Fields{"listing_id": listing.ID})
			continue
		}
		if isNew {
			inserted++
		}
	}

	seenSaved := true
	if err := uc.store.SaveSeenIDs(ctx, userID, seen.Union(current)); err != nil {
		seenSaved = false
		ucLogger.Error("Failed to save seen ids, listings may be shown again next cycle", err, nil)
	}

	// 7. Успешный запуск учитывается в лимите
	if err := uc.gate.RecordFetch(ctx, userID, true); err != nil {
		ucLogger.Error("Failed to record successful fetch", err, nil)
	}

	// 8. Статистика
	stats := domain.FetchStats{
		TotalCount:    len(all),
		NewCount:      len(fresh),
		SeenCount:     len(all) - len(fresh),
		Dropped:       dropped,
		Inserted:      inserted,
		StoreFailures: storeFailures,
		ProviderTotal: searchResult.TotalCount,
		SeenSetSaved:  seenSaved,
		Elapsed:       uc.now().Sub(startedAt),
		Timestamp:     startedAt,
	}

	// 9. В инкрементальном режиме только новые
	listings := all
	if mode == domain.FetchModeIncremental {
		listings = fresh
	}

	result := &domain.FetchResult{
		SessionID: sessionID,
		UserID:    userID,
		Mode:      mode,
		Admission: admission,
		Listings:  listings,
		Stats:     stats,
	}

	uc.finishSession(ctx, sessionID, domain.FetchOutcomeCompleted, domain.FetchSessionTotals{
		TotalParsed: stats.TotalCount,
		TotalNew:    stats.NewCount,
		TotalSaved:  stats.TotalCount - storeFailures,
	})
	uc.publish(ctx, result, domain.FetchOutcomeCompleted, "")

	ucLogger.Info("Fetch cycle finished", port.Fields{
		"total_count":    stats.TotalCount,
		"new_count":      stats.NewCount,
		"seen_count":     stats.SeenCount,
		"dropped":        stats.Dropped,
		"provider_total": stats.ProviderTotal,
		"elapsed_ms":     stats.Elapsed.Milliseconds(),
	})
	return result, nil
}

// partition нормализует записи и делит их на новые и уже показанные.
// Повторы одного id внутри ответа схлопываются в первую запись.
func partition(offers []domain.RawOffer, snapshot domain.IDSet) (all, fresh []domain.Listing, current domain.IDSet, dropped int) {
	all = make([]domain.Listing, 0, len(offers))
	fresh = make([]domain.Listing, 0, len(offers))
	current = domain.NewIDSet()

	for _, raw := range offers {
		listing, ok := normalizer.Normalize(raw)
		if !ok {
			dropped++
			continue
		}
		if current.Has(listing.ID) {
			continue
		}
		current.Add(listing.ID)
		all = append(all, listing)
		if !snapshot.Has(listing.ID) {
			fresh = append(fresh, listing)
		}
	}
	return all, fresh, current, dropped
}

func (uc *RunFetchUseCase) startSession(ctx context.Context, userID string, mode domain.FetchMode) uuid.UUID {
	if uc.sessions == nil {
		return uuid.Nil
	}
	id, err := uc.sessions.StartSession(ctx, userID, mode)
	if err != nil {
		contextkeys.LoggerFromContext(ctx).Warn("Failed to start fetch session", port.Fields{"error": err.Error()})
		return uuid.Nil
	}
	return id
}

func (uc *RunFetchUseCase) finishSession(ctx context.Context, id uuid.UUID, outcome domain.FetchOutcome, totals domain.FetchSessionTotals) {
	if uc.sessions == nil || id == uuid.Nil {
		return
	}
	if err := uc.sessions.FinishSession(ctx, id, outcome, totals); err != nil {
		contextkeys.LoggerFromContext(ctx).Warn("Failed to finish fetch session", port.Fields{
			"session_id": id.String(),
			"error":      err.Error(),
		})
	}
}

func (uc *RunFetchUseCase) publish(ctx context.Context, result *domain.FetchResult, outcome domain.FetchOutcome, errText string) {
	if uc.events == nil {
		return
	}
	event := domain.FetchResultEvent{
		EventID:    uuid.New(),
		SessionID:  result.SessionID,
		UserID:     result.UserID,
		Mode:       result.Mode,
		Outcome:    outcome,
		Admission:  result.Admission,
		Stats:      result.Stats,
		Listings:   result.Listings,
		Error:      errText,
		OccurredAt: uc.now(),
	}
	if err := uc.events.PublishFetchResult(ctx, event); err != nil {
		contextkeys.LoggerFromContext(ctx).Warn("Failed to publish fetch result event", port.Fields{
			"outcome": string(outcome),
			"error":   err.Error(),
		})
	}
}
