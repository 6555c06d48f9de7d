package usecase

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultAdmissionInterval - минимальный интервал между учитываемыми запусками пользователя
const DefaultAdmissionInterval = 24 * time.Hour

// AdmissionGateConfig - настройки лимита
type AdmissionGateConfig struct {
	Enabled  bool
	Interval time.Duration
	// Location определяет границу календарного дня для счетчика за сегодня
	Location *time.Location
}

// AdmissionGate разрешает не более одного учитываемого запуска на пользователя за интервал.
// Чтение и запись записи пользователя не атомарны: при гонке двух запусков побеждает последний писатель.
type AdmissionGate struct {
	store port.AdmissionStorePort
	cfg   AdmissionGateConfig
	now   func() time.Time
}

type AdmissionGateOption func(*AdmissionGate)

// WithAdmissionClock подменяет источник времени
func WithAdmissionClock(now func() time.Time) AdmissionGateOption {
	return func(g *AdmissionGate) {
		if now != nil {
			g.now = now
		}
	}
}

func NewAdmissionGate(store port.AdmissionStorePort, cfg AdmissionGateConfig, opts ...AdmissionGateOption) *AdmissionGate {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAdmissionInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	g := &AdmissionGate{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MayFetch сообщает, может ли пользователь запустить поиск сейчас.
// Ошибка чтения хранилища не блокирует пользователя: возвращается allowed со статусом error.
func (g *AdmissionGate) MayFetch(ctx context.Context, userID string) (bool, domain.AdmissionInfo) {
	if !g.cfg.Enabled {
		return true, domain.AdmissionInfo{Status: domain.AdmissionDisabled}
	}

	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "AdmissionGate",
		"method":    "MayFetch",
		"user_id":   userID,
	})

	now := g.now()
	record, err := g.store.Get(ctx, userID)
	if err != nil {
		logger.Error("Failed to read admission record, allowing fetch", err, nil)
		return true, domain.AdmissionInfo{Status: domain.AdmissionError}
	}
	if record == nil {
		return true, domain.AdmissionInfo{Status: domain.AdmissionFirstTime}
	}

	if g.rollover(record, now) {
		if err := g.store.Save(ctx, *record); err != nil {
			logger.Warn("Failed to persist daily counter reset", port.Fields{"error": err.Error()})
		}
	}

	allowed, info := g.decide(record, now)
	if !allowed {
		logger.Debug("Fetch blocked by admission interval", port.Fields{
			"wait_hours":   info.WaitHours,
			"wait_minutes": info.WaitMinutes,
		})
	}
	return allowed, info
}

// RecordFetch фиксирует исход запуска. Только успешный запуск сдвигает
// время последнего запуска и увеличивает счетчики; неуспешный лишь отмечается.
func (g *AdmissionGate) RecordFetch(ctx context.Context, userID string, success bool) error {
	if !g.cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}

	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "AdmissionGate",
		"method":    "RecordFetch",
		"user_id":   userID,
		"success":   success,
	})

	now := g.now()
	record, err := g.store.Get(ctx, userID)
	if err != nil {
		logger.Error("Failed to read admission record", err, nil)
		return fmt.Errorf("admission gate: failed to read record for user %s: %w", userID, err)
	}
	if record == nil {
		record = &domain.AdmissionRecord{
			UserID:      userID,
			CountersDay: g.day(now),
			CreatedAt:   now,
		}
	}
	g.rollover(record, now)

	attemptAt := now
	record.LastAttemptAt = &attemptAt
	record.LastAttemptOK = success
	if success {
		fetchAt := now
		record.LastFetchAt = &fetchAt
		record.FetchCountToday++
		record.FetchCountTotal++
	} else {
		record.FailedCountTotal++
	}
	record.UpdatedAt = now

	if err := g.store.Save(ctx, *record); err != nil {
		logger.Error("Failed to save admission record", err, nil)
		return fmt.Errorf("admission gate: failed to save record for user %s: %w", userID, err)
	}

	logger.Debug("Fetch recorded", port.Fields{
		"fetch_count_today": record.FetchCountToday,
		"fetch_count_total": record.FetchCountTotal,
	})
	return nil
}

// UserStats возвращает запись пользователя и текущее решение гейта
func (g *AdmissionGate) UserStats(ctx context.Context, userID string) (*domain.AdmissionUserStats, error) {
	record, err := g.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("admission gate: failed to read record for user %s: %w", userID, err)
	}

	stats := &domain.AdmissionUserStats{Record: record}
	if record != nil && g.rollover(record, g.now()) {
		if err := g.store.Save(ctx, *record); err != nil {
			contextkeys.LoggerFromContext(ctx).Warn("Failed to persist daily counter reset", port.Fields{
				"component": "AdmissionGate",
				"user_id":   userID,
				"error":     err.Error(),
			})
		}
	}

	switch {
	case !g.cfg.Enabled:
		stats.Allowed, stats.Decision = true, domain.AdmissionInfo{Status: domain.AdmissionDisabled}
	case record == nil:
		stats.Allowed, stats.Decision = true, domain.AdmissionInfo{Status: domain.AdmissionFirstTime}
	default:
		stats.Allowed, stats.Decision = g.decide(record, g.now())
	}
	return stats, nil
}

// GlobalStats считает агрегаты по всем пользователям
func (g *AdmissionGate) GlobalStats(ctx context.Context) (*domain.AdmissionGlobalStats, error) {
	stats, err := g.store.Global(ctx, g.day(g.now()))
	if err != nil {
		return nil, fmt.Errorf("admission gate: failed to collect global stats: %w", err)
	}
	stats.Enabled = g.cfg.Enabled
	stats.Interval = g.cfg.Interval
	return stats, nil
}

// ResetUser - административный сброс: пользователь снова может запустить поиск сразу
func (g *AdmissionGate) ResetUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}
	if err := g.store.Reset(ctx, userID); err != nil {
		return fmt.Errorf("admission gate: failed to reset user %s: %w", userID, err)
	}
	contextkeys.LoggerFromContext(ctx).Warn("Admission record reset", port.Fields{
		"component": "AdmissionGate",
		"user_id":   userID,
	})
	return nil
}

func (g *AdmissionGate) decide(record *domain.AdmissionRecord, now time.Time) (bool, domain.AdmissionInfo) {
	info := domain.AdmissionInfo{
		LastFetchAt:     record.LastFetchAt,
		FetchCountToday: record.FetchCountToday,
		FetchCountTotal: record.FetchCountTotal,
	}
	if record.LastFetchAt == nil {
		info.Status = domain.AdmissionFirstTime
		return true, info
	}

	next := record.LastFetchAt.Add(g.cfg.Interval)
	if now.Before(next) {
		info.Status = domain.AdmissionBlocked
		info.WaitHours, info.WaitMinutes = splitWait(next.Sub(now))
		info.NextAvailableAt = &next
		return false, info
	}

	info.Status = domain.AdmissionAllowed
	return true, info
}

// rollover обнуляет счетчик за сегодня, если запись относится к другому дню
func (g *AdmissionGate) rollover(record *domain.AdmissionRecord, now time.Time) bool {
	today := g.day(now)
	if record.CountersDay == today {
		return false
	}
	record.CountersDay = today
	record.FetchCountToday = 0
	return true
}

func (g *AdmissionGate) day(t time.Time) string {
	return t.In(g.cfg.Location).Format(domain.CountersDayLayout)
}

// splitWait делит ожидание на часы и минуты; неполная минута округляется вверх
func splitWait(remaining time.Duration) (int, int) {
	if remaining <= 0 {
		return 0, 0
	}
	hours := int(remaining / time.Hour)
	minutes := int(math.Ceil((remaining - time.Duration(hours)*time.Hour).Minutes()))
	if minutes == 60 {
		hours++
		minutes = 0
	}
	return hours, minutes
}
