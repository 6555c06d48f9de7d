package redis

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "cian:admission:"
	usersKey  = "cian:admission:users"
)

// Поля хэша записи пользователя
const (
	fieldLastFetchAt      = "last_fetch_at"
	fieldLastAttemptAt    = "last_attempt_at"
	fieldLastAttemptOK    = "last_attempt_ok"
	fieldFetchCountToday  = "fetch_count_today"
	fieldFetchCountTotal  = "fetch_count_total"
	fieldFailedCountTotal = "failed_count_total"
	fieldCountersDay      = "counters_day"
	fieldCreatedAt        = "created_at"
	fieldUpdatedAt        = "updated_at"
)

// RedisAdmissionRepository хранит запись каждого пользователя в отдельном хэше,
// список пользователей ведется во множестве usersKey
type RedisAdmissionRepository struct {
	client *redis.Client
}

func NewRedisAdmissionRepository(client *redis.Client) (*RedisAdmissionRepository, error) {
	if client == nil {
		return nil, fmt.Errorf("redis admission repository: client cannot be nil")
	}
	return &RedisAdmissionRepository{client: client}, nil
}

func recordKey(userID string) string {
	return keyPrefix + userID
}

func (r *RedisAdmissionRepository) Get(ctx context.Context, userID string) (*domain.AdmissionRecord, error) {
	values, err := r.client.HGetAll(ctx, recordKey(userID)).Result()
	if err != nil {
		contextkeys.LoggerFromContext(ctx).Error("Failed to read admission record", err, port.Fields{
			"component": "RedisAdmissionRepository",
			"user_id":   userID,
		})
		return nil, fmt.Errorf("RedisAdmissionRepository: failed to get record for user %s: %w", userID, err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeRecord(userID, values)
}

func (r *RedisAdmissionRepository) Save(ctx context.Context, rec domain.AdmissionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey(rec.UserID), encodeRecord(rec))
		pipe.SAdd(ctx, usersKey, rec.UserID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save admission record for user %s: %w", domain.ErrStorage, rec.UserID, err)
	}
	return nil
}

func (r *RedisAdmissionRepository) Reset(ctx context.Context, userID string) error {
	key := recordKey(userID)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: reset admission record for user %s: %w", domain.ErrStorage, userID, err)
	}
	if exists == 0 {
		return nil
	}

	err = r.client.HSet(ctx, key, map[string]interface{}{
		fieldLastFetchAt:     "",
		fieldFetchCountToday: 0,
		fieldUpdatedAt:       formatTime(time.Now()),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: reset admission record for user %s: %w", domain.ErrStorage, userID, err)
	}
	return nil
}

// Global читает все записи одним конвейером
func (r *RedisAdmissionRepository) Global(ctx context.Context, today string) (*domain.AdmissionGlobalStats, error) {
	users, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("RedisAdmissionRepository: failed to list users: %w", err)
	}

	stats := &domain.AdmissionGlobalStats{}
	if len(users) == 0 {
		return stats, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(users))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, user := range users {
			cmds[i] = pipe.HGetAll(ctx, recordKey(user))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("RedisAdmissionRepository: failed to read records: %w", err)
	}

	for i, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		rec, err := decodeRecord(users[i], values)
		if err != nil {
			return nil, err
		}
		accumulate(stats, rec, today)
	}
	return stats, nil
}

func accumulate(stats *domain.AdmissionGlobalStats, rec *domain.AdmissionRecord, today string) {
	stats.TotalUsers++
	stats.TotalFetches += rec.FetchCountTotal
	if rec.CountersDay == today {
		stats.FetchesToday += rec.FetchCountToday
	}
	if rec.LastFetchAt != nil && (stats.LastFetchAt == nil || rec.LastFetchAt.After(*stats.LastFetchAt)) {
		last := *rec.LastFetchAt
		stats.LastFetchAt = &last
	}
}

func encodeRecord(rec domain.AdmissionRecord) map[string]interface{} {
	return map[string]interface{}{
		fieldLastFetchAt:      formatTimePtr(rec.LastFetchAt),
		fieldLastAttemptAt:    formatTimePtr(rec.LastAttemptAt),
		fieldLastAttemptOK:    strconv.FormatBool(rec.LastAttemptOK),
		fieldFetchCountToday:  rec.FetchCountToday,
		fieldFetchCountTotal:  rec.FetchCountTotal,
		fieldFailedCountTotal: rec.FailedCountTotal,
		fieldCountersDay:      rec.CountersDay,
		fieldCreatedAt:        formatTime(rec.CreatedAt),
		fieldUpdatedAt:        formatTime(rec.UpdatedAt),
	}
}

func decodeRecord(userID string, values map[string]string) (*domain.AdmissionRecord, error) {
	rec := &domain.AdmissionRecord{UserID: userID, CountersDay: values[fieldCountersDay]}
	var err error

	if rec.LastFetchAt, err = parseTimePtr(values[fieldLastFetchAt]); err != nil {
		return nil, fmt.Errorf("RedisAdmissionRepository: bad %s for user %s: %w", fieldLastFetchAt, userID, err)
	}
	if rec.LastAttemptAt, err = parseTimePtr(values[fieldLastAttemptAt]); err != nil {
		return nil, fmt.Errorf("RedisAdmissionRepository: bad %s for user %s: %w", fieldLastAttemptAt, userID, err)
	}
	rec.LastAttemptOK, _ = strconv.ParseBool(values[fieldLastAttemptOK])

	counters := []struct {
		field string
		dst   *int
	}{
		{fieldFetchCountToday, &rec.FetchCountToday},
		{fieldFetchCountTotal, &rec.FetchCountTotal},
		{fieldFailedCountTotal, &rec.FailedCountTotal},
	}
	for _, c := range counters {
		raw := values[c.field]
		if raw == "" {
			continue
		}
		if *c.dst, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("RedisAdmissionRepository: bad %s for user %s: %w", c.field, userID, err)
		}
	}

	if t, err := parseTimePtr(values[fieldCreatedAt]); err == nil && t != nil {
		rec.CreatedAt = *t
	}
	if t, err := parseTimePtr(values[fieldUpdatedAt]); err == nil && t != nil {
		rec.UpdatedAt = *t
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
