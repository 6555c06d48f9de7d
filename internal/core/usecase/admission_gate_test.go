package usecase

import (
	"cian-monitor-service/internal/core/domain"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gateStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestGate(store *fakeAdmissionStore, clock *fakeClock, enabled bool) *AdmissionGate {
	return NewAdmissionGate(store, AdmissionGateConfig{
		Enabled:  enabled,
		Interval: 24 * time.Hour,
		Location: time.UTC,
	}, WithAdmissionClock(clock.Now))
}

func TestAdmissionGate_FirstTime(t *testing.T) {
	gate := newTestGate(newFakeAdmissionStore(), newFakeClock(gateStart), true)

	allowed, info := gate.MayFetch(context.Background(), "u1")
	assert.True(t, allowed)
	assert.Equal(t, domain.AdmissionFirstTime, info.Status)
}

func TestAdmissionGate_BlocksUntilIntervalElapses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(gateStart)
	gate := newTestGate(newFakeAdmissionStore(), clock, true)

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))

	clock.Set(gateStart.Add(24*time.Hour - time.Second))
	allowed, info := gate.MayFetch(ctx, "u1")
	assert.False(t, allowed)
	assert.Equal(t, domain.AdmissionBlocked, info.Status)
	assert.True(t, info.WaitHours > 0 || info.WaitMinutes > 0)
	require.NotNil(t, info.NextAvailableAt)
	assert.True(t, info.NextAvailableAt.Equal(gateStart.Add(24*time.Hour)))

	clock.Set(gateStart.Add(24*time.Hour + time.Second))
	allowed, info = gate.MayFetch(ctx, "u1")
	assert.True(t, allowed)
	assert.Equal(t, domain.AdmissionAllowed, info.Status)
}

func TestAdmissionGate_FailedFetchDoesNotConsumeQuota(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	clock := newFakeClock(gateStart)
	gate := newTestGate(store, clock, true)

	allowed, _ := gate.MayFetch(ctx, "u1")
	require.True(t, allowed)

	require.NoError(t, gate.RecordFetch(ctx, "u1", false))

	rec, ok := store.record("u1")
	require.True(t, ok)
	assert.Nil(t, rec.LastFetchAt)
	assert.Zero(t, rec.FetchCountToday)
	assert.Zero(t, rec.FetchCountTotal)
	assert.Equal(t, 1, rec.FailedCountTotal)
	assert.False(t, rec.LastAttemptOK)

	allowed, info := gate.MayFetch(ctx, "u1")
	assert.True(t, allowed)
	assert.Equal(t, domain.AdmissionFirstTime, info.Status)
}

func TestAdmissionGate_FailedFetchKeepsPreviousWindow(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	clock := newFakeClock(gateStart)
	gate := newTestGate(store, clock, true)

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	clock.Advance(25 * time.Hour)
	require.NoError(t, gate.RecordFetch(ctx, "u1", false))

	rec, _ := store.record("u1")
	require.NotNil(t, rec.LastFetchAt)
	assert.True(t, rec.LastFetchAt.Equal(gateStart))

	allowed, _ := gate.MayFetch(ctx, "u1")
	assert.True(t, allowed)
}

func TestAdmissionGate_DayBoundaryResetsTodayCounter(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	d1 := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	clock := newFakeClock(d1)
	gate := NewAdmissionGate(store, AdmissionGateConfig{
		Enabled:  true,
		Interval: 2 * time.Hour,
		Location: time.UTC,
	}, WithAdmissionClock(clock.Now))

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	rec, _ := store.record("u1")
	require.Equal(t, 1, rec.FetchCountToday)
	require.Equal(t, "2025-03-10", rec.CountersDay)

	clock.Set(time.Date(2025, 3, 11, 0, 30, 0, 0, time.UTC))
	allowed, info := gate.MayFetch(ctx, "u1")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.FetchCountToday)
	assert.Equal(t, 1, info.FetchCountTotal)

	rec, _ = store.record("u1")
	assert.Equal(t, 0, rec.FetchCountToday)
	assert.Equal(t, 1, rec.FetchCountTotal)
	assert.Equal(t, "2025-03-11", rec.CountersDay)
}

func TestAdmissionGate_DayBoundaryUsesConfiguredLocation(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	moscow := time.FixedZone("MSK", 3*60*60)
	// 22:00 UTC - уже следующий день по Москве
	clock := newFakeClock(time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC))
	gate := NewAdmissionGate(store, AdmissionGateConfig{Enabled: true, Location: moscow}, WithAdmissionClock(clock.Now))

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	rec, _ := store.record("u1")
	assert.Equal(t, "2025-03-11", rec.CountersDay)
}

func TestAdmissionGate_Disabled(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	store.getErr = errFakeStorage
	gate := newTestGate(store, newFakeClock(gateStart), false)

	allowed, info := gate.MayFetch(ctx, "u1")
	assert.True(t, allowed)
	assert.Equal(t, domain.AdmissionDisabled, info.Status)

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	assert.Zero(t, store.saves)
}

func TestAdmissionGate_StoreErrorFailsOpen(t *testing.T) {
	store := newFakeAdmissionStore()
	store.getErr = errFakeStorage
	gate := newTestGate(store, newFakeClock(gateStart), true)

	allowed, info := gate.MayFetch(context.Background(), "u1")
	assert.True(t, allowed)
	assert.Equal(t, domain.AdmissionError, info.Status)

	err := gate.RecordFetch(context.Background(), "u1", true)
	assert.ErrorIs(t, err, errFakeStorage)
}

func TestAdmissionGate_ResetUser(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdmissionStore()
	gate := newTestGate(store, newFakeClock(gateStart), true)

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	allowed, _ := gate.MayFetch(ctx, "u1")
	require.False(t, allowed)

	require.NoError(t, gate.ResetUser(ctx, "u1"))
	allowed, _ = gate.MayFetch(ctx, "u1")
	assert.True(t, allowed)

	rec, _ := store.record("u1")
	assert.Equal(t, 1, rec.FetchCountTotal)

	assert.ErrorIs(t, gate.ResetUser(ctx, " "), domain.ErrInvalidUserID)
}

func TestAdmissionGate_Stats(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(gateStart)
	gate := newTestGate(newFakeAdmissionStore(), clock, true)

	require.NoError(t, gate.RecordFetch(ctx, "u1", true))
	require.NoError(t, gate.RecordFetch(ctx, "u2", true))
	clock.Advance(time.Minute)

	userStats, err := gate.UserStats(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, userStats.Record)
	assert.False(t, userStats.Allowed)
	assert.Equal(t, domain.AdmissionBlocked, userStats.Decision.Status)

	unknown, err := gate.UserStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, unknown.Record)
	assert.Equal(t, domain.AdmissionFirstTime, unknown.Decision.Status)

	global, err := gate.GlobalStats(ctx)
	require.NoError(t, err)
	assert.True(t, global.Enabled)
	assert.Equal(t, 24*time.Hour, global.Interval)
	assert.Equal(t, 2, global.TotalUsers)
	assert.Equal(t, 2, global.TotalFetches)
	assert.Equal(t, 2, global.FetchesToday)
}

func TestSplitWait(t *testing.T) {
	tests := []struct {
		remaining   time.Duration
		wantHours   int
		wantMinutes int
	}{
		{24 * time.Hour, 24, 0},
		{24*time.Hour - time.Millisecond, 24, 0},
		{time.Second, 0, 1},
		{90 * time.Second, 0, 2},
		{5*time.Hour + 30*time.Minute, 5, 30},
		{0, 0, 0},
	}
	for _, tt := range tests {
		h, m := splitWait(tt.remaining)
		assert.Equal(t, tt.wantHours, h, tt.remaining.String())
		assert.Equal(t, tt.wantMinutes, m, tt.remaining.String())
	}
}
