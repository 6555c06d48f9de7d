package postgres

import (
	"cian-monitor-service/internal/core/domain"
	pgclient "cian-monitor-service/pkg/postgres"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Тесты работают с настоящей базой и пропускаются, если TEST_DATABASE_URL не задан
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgclient.NewClient(ctx, pgclient.Config{DatabaseURL: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func TestNewRepositories_NilPool(t *testing.T) {
	_, err := NewPostgresListingRepository(nil)
	assert.Error(t, err)
	_, err = NewPostgresAdmissionRepository(nil)
	assert.Error(t, err)
	_, err = NewPostgresSessionRepository(nil)
	assert.Error(t, err)
	assert.Error(t, EnsureSchema(context.Background(), nil))
}

func TestListingRepository_UpsertIsIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo, err := NewPostgresListingRepository(pool)
	require.NoError(t, err)

	listing := domain.Listing{
		ID:           uniqueID("listing"),
		Source:       domain.DefaultSource,
		PriceMonthly: 50000,
		PriceText:    "50,000 ₽/month",
		AreaText:     "50 m²",
		AreaNumeric:  50,
		Address:      "Kaliningrad, Lenina 1",
		Coordinates:  domain.Coordinates{Lat: 54.71, Lng: 20.51},
		Phones:       []string{"+7 9001234567"},
	}

	isNew, err := repo.UpsertListing(ctx, listing)
	require.NoError(t, err)
	assert.True(t, isNew)

	listing.PriceText = "55,000 ₽/month"
	isNew, err = repo.UpsertListing(ctx, listing)
	require.NoError(t, err)
	assert.False(t, isNew)

	stored, err := repo.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "55,000 ₽/month", stored.PriceText)
	assert.Equal(t, []string{"+7 9001234567"}, stored.Phones)
	assert.Empty(t, stored.Photos)
	assert.InDelta(t, 54.71, stored.Coordinates.Lat, 1e-9)

	_, err = repo.GetListing(ctx, uniqueID("missing"))
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestListingRepository_SeenIDsFullReplace(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo, err := NewPostgresListingRepository(pool)
	require.NoError(t, err)

	user := uniqueID("user")
	assert.Empty(t, repo.GetSeenIDs(ctx, user))

	require.NoError(t, repo.SaveSeenIDs(ctx, user, domain.NewIDSet("1", "2", "3")))
	require.NoError(t, repo.SaveSeenIDs(ctx, user, domain.NewIDSet("2", "3", "4")))

	assert.Equal(t, []string{"2", "3", "4"}, repo.GetSeenIDs(ctx, user).Sorted())

	require.NoError(t, repo.SaveSeenIDs(ctx, user, domain.NewIDSet()))
	assert.Empty(t, repo.GetSeenIDs(ctx, user))
}

func TestAdmissionRepository_RoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo, err := NewPostgresAdmissionRepository(pool)
	require.NoError(t, err)

	user := uniqueID("user")
	rec, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, rec)

	fetchedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, domain.AdmissionRecord{
		UserID:          user,
		LastFetchAt:     &fetchedAt,
		LastAttemptAt:   &fetchedAt,
		LastAttemptOK:   true,
		FetchCountToday: 1,
		FetchCountTotal: 4,
		CountersDay:     "2025-03-10",
	}))

	rec, err = repo.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.LastFetchAt)
	assert.True(t, rec.LastFetchAt.Equal(fetchedAt))
	assert.Equal(t, "2025-03-10", rec.CountersDay)
	assert.Equal(t, 4, rec.FetchCountTotal)

	require.NoError(t, repo.Reset(ctx, user))
	rec, err = repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, rec.LastFetchAt)
	assert.Zero(t, rec.FetchCountToday)
	assert.Equal(t, 4, rec.FetchCountTotal)

	global, err := repo.Global(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, global.TotalUsers, 1)
}

func TestSessionRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo, err := NewPostgresSessionRepository(pool)
	require.NoError(t, err)

	id, err := repo.StartSession(ctx, uniqueID("user"), domain.FetchModeFull)
	require.NoError(t, err)
	require.NoError(t, repo.FinishSession(ctx, id, domain.FetchOutcomeCompleted, domain.FetchSessionTotals{TotalParsed: 3, TotalNew: 2, TotalSaved: 3}))

	err = repo.FinishSession(ctx, uuid.New(), domain.FetchOutcomeFailed, domain.FetchSessionTotals{Error: "x"})
	assert.ErrorIs(t, err, domain.ErrStorage)
}
