package redis

import (
	"cian-monitor-service/internal/core/domain"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringify повторяет то, как Redis возвращает значения хэша
func stringify(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestRecordCodec_RoundTrip(t *testing.T) {
	fetchedAt := time.Date(2025, 3, 10, 12, 30, 0, 123, time.UTC)
	in := domain.AdmissionRecord{
		UserID:           "u1",
		LastFetchAt:      &fetchedAt,
		LastAttemptAt:    &fetchedAt,
		LastAttemptOK:    true,
		FetchCountToday:  1,
		FetchCountTotal:  7,
		FailedCountTotal: 2,
		CountersDay:      "2025-03-10",
		CreatedAt:        fetchedAt.Add(-time.Hour),
		UpdatedAt:        fetchedAt,
	}

	out, err := decodeRecord("u1", stringify(encodeRecord(in)))
	require.NoError(t, err)
	require.NotNil(t, out.LastFetchAt)
	assert.True(t, out.LastFetchAt.Equal(fetchedAt))
	assert.True(t, out.LastAttemptOK)
	assert.Equal(t, 1, out.FetchCountToday)
	assert.Equal(t, 7, out.FetchCountTotal)
	assert.Equal(t, 2, out.FailedCountTotal)
	assert.Equal(t, "2025-03-10", out.CountersDay)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
}

func TestRecordCodec_NilTimes(t *testing.T) {
	out, err := decodeRecord("u1", stringify(encodeRecord(domain.AdmissionRecord{UserID: "u1", FailedCountTotal: 1})))
	require.NoError(t, err)
	assert.Nil(t, out.LastFetchAt)
	assert.Nil(t, out.LastAttemptAt)
	assert.Equal(t, 1, out.FailedCountTotal)
}

func TestRecordCodec_Corrupted(t *testing.T) {
	_, err := decodeRecord("u1", map[string]string{fieldLastFetchAt: "yesterday"})
	assert.Error(t, err)

	_, err = decodeRecord("u1", map[string]string{fieldFetchCountTotal: "many"})
	assert.Error(t, err)
}

func TestAccumulate(t *testing.T) {
	early := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	stats := &domain.AdmissionGlobalStats{}

	accumulate(stats, &domain.AdmissionRecord{LastFetchAt: &early, FetchCountToday: 3, FetchCountTotal: 5, CountersDay: "2025-03-09"}, "2025-03-10")
	accumulate(stats, &domain.AdmissionRecord{LastFetchAt: &late, FetchCountToday: 1, FetchCountTotal: 1, CountersDay: "2025-03-10"}, "2025-03-10")

	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 6, stats.TotalFetches)
	assert.Equal(t, 1, stats.FetchesToday)
	assert.True(t, stats.LastFetchAt.Equal(late))
}

func TestNewRedisAdmissionRepository_NilClient(t *testing.T) {
	_, err := NewRedisAdmissionRepository(nil)
	assert.Error(t, err)
}
