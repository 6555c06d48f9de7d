package postgres

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listingColumns = `id, source, price_monthly, price_text, area_text, area_numeric, address,
	latitude, longitude, geohash, floor, floor_total, category_text, description,
	phones, url, photos, added_time, created_at, updated_at`

// PostgresListingRepository хранит объявления и множества показанных id пользователей
type PostgresListingRepository struct {
	pool *pgxpool.Pool
	// seenRetention > 0 удаляет из множества показанных id старше этого срока
	seenRetention time.Duration
}

type ListingRepositoryOption func(*PostgresListingRepository)

// WithSeenRetention включает очистку старых записей множества показанных
func WithSeenRetention(retention time.Duration) ListingRepositoryOption {
	return func(r *PostgresListingRepository) { r.seenRetention = retention }
}

func NewPostgresListingRepository(pool *pgxpool.Pool, opts ...ListingRepositoryOption) (*PostgresListingRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres listing repository: pool cannot be nil")
	}
	r := &PostgresListingRepository{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *PostgresListingRepository) logger(ctx context.Context, method string) port.LoggerPort {
	return contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "PostgresListingRepository",
		"method":    method,
	})
}

// UpsertListing полностью перезаписывает объявление; xmax = 0 только у только что вставленной строки
func (r *PostgresListingRepository) UpsertListing(ctx context.Context, l domain.Listing) (bool, error) {
	query := `
		INSERT INTO listings (
			id, source, price_monthly, price_text, area_text, area_numeric, address,
			latitude, longitude, geohash, floor, floor_total, category_text, description,
			phones, url, photos, added_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			price_monthly = EXCLUDED.price_monthly,
			price_text = EXCLUDED.price_text,
			area_text = EXCLUDED.area_text,
			area_numeric = EXCLUDED.area_numeric,
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			geohash = EXCLUDED.geohash,
			floor = EXCLUDED.floor,
			floor_total = EXCLUDED.floor_total,
			category_text = EXCLUDED.category_text,
			description = EXCLUDED.description,
			phones = EXCLUDED.phones,
			url = EXCLUDED.url,
			photos = EXCLUDED.photos,
			added_time = EXCLUDED.added_time,
			updated_at = NOW()
		RETURNING (xmax = 0)`

	var lat, lng *float64
	if !l.Coordinates.IsZero() {
		lat, lng = &l.Coordinates.Lat, &l.Coordinates.Lng
	}

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		l.ID, l.Source, l.PriceMonthly, l.PriceText, l.AreaText, l.AreaNumeric, l.Address,
		lat, lng, l.Geohash, l.Floor, l.FloorTotal, l.CategoryText, l.Description,
		nonNil(l.Phones), l.URL, nonNil(l.Photos), l.AddedTime,
	).Scan(&inserted)
	if err != nil {
		r.logger(ctx, "UpsertListing").Error("Failed to upsert listing", err, port.Fields{"listing_id": l.ID})
		return false, fmt.Errorf("%w: upsert listing %s: %w", domain.ErrStorage, l.ID, err)
	}
	return inserted, nil
}

// GetSeenIDs при ошибке чтения возвращает пустое множество
func (r *PostgresListingRepository) GetSeenIDs(ctx context.Context, userID string) domain.IDSet {
	repoLogger := r.logger(ctx, "GetSeenIDs")
	ids := domain.NewIDSet()

	rows, err := r.pool.Query(ctx, `SELECT listing_id FROM seen_listings WHERE user_id = $1`, userID)
	if err != nil {
		repoLogger.Error("Failed to query seen ids, using empty set", err, port.Fields{"user_id": userID})
		return domain.NewIDSet()
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			repoLogger.Error("Failed to scan seen id, using empty set", err, port.Fields{"user_id": userID})
			return domain.NewIDSet()
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		repoLogger.Error("Error during seen ids iteration, using empty set", err, port.Fields{"user_id": userID})
		return domain.NewIDSet()
	}

	repoLogger.Debug("Seen ids loaded", port.Fields{"user_id": userID, "count": len(ids)})
	return ids
}

// SaveSeenIDs заменяет множество пользователя в одной транзакции.
// Уже существующие строки сохраняют first_seen_at.
func (r *PostgresListingRepository) SaveSeenIDs(ctx context.Context, userID string, ids domain.IDSet) error {
	repoLogger := r.logger(ctx, "SaveSeenIDs")
	list := ids.Sorted()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: save seen ids: begin transaction: %w", domain.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM seen_listings WHERE user_id = $1 AND NOT (listing_id = ANY($2::text[]))`,
		userID, list,
	); err != nil {
		repoLogger.Error("Failed to delete stale seen ids", err, port.Fields{"user_id": userID})
		return fmt.Errorf("%w: save seen ids for user %s: %w", domain.ErrStorage, userID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO seen_listings (user_id, listing_id)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT (user_id, listing_id) DO NOTHING`,
		userID, list,
	); err != nil {
		repoLogger.Error("Failed to insert seen ids", err, port.Fields{"user_id": userID})
		return fmt.Errorf("%w: save seen ids for user %s: %w", domain.ErrStorage, userID, err)
	}

	var pruned int64
	if r.seenRetention > 0 {
		tag, err := tx.Exec(ctx,
			`DELETE FROM seen_listings WHERE user_id = $1 AND first_seen_at < $2`,
			userID, time.Now().Add(-r.seenRetention),
		)
		if err != nil {
			return fmt.Errorf("%w: prune seen ids for user %s: %w", domain.ErrStorage, userID, err)
		}
		pruned = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: save seen ids: commit: %w", domain.ErrStorage, err)
	}

	repoLogger.Debug("Seen ids saved", port.Fields{"user_id": userID, "count": len(list), "pruned": pruned})
	return nil
}

func (r *PostgresListingRepository) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("PostgresListingRepository: failed to get listing %s: %w", id, err)
	}
	return l, nil
}

func (r *PostgresListingRepository) ListListings(ctx context.Context, filter domain.ListingsFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE ($1 = '' OR source = $1)
		ORDER BY updated_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, filter.Source, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := make([]domain.Listing, 0, filter.Limit)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("PostgresListingRepository: failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: error during listings iteration: %w", err)
	}
	return listings, nil
}

// DeleteListingsOlderThan удаляет объявления, которые не обновлялись days дней
func (r *PostgresListingRepository) DeleteListingsOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM listings WHERE updated_at < NOW() - make_interval(days => $1)`,
		days,
	)
	if err != nil {
		r.logger(ctx, "DeleteListingsOlderThan").Error("Failed to delete old listings", err, port.Fields{"days": days})
		return 0, fmt.Errorf("%w: delete listings older than %d days: %w", domain.ErrStorage, days, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresListingRepository) GetStatistics(ctx context.Context) (*domain.StoreStatistics, error) {
	stats := &domain.StoreStatistics{BySource: make(map[string]int64)}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(price_monthly) FILTER (WHERE price_monthly > 0), 0),
		       COALESCE(MIN(price_monthly) FILTER (WHERE price_monthly > 0), 0),
		       COALESCE(MAX(price_monthly) FILTER (WHERE price_monthly > 0), 0)
		FROM listings`,
	).Scan(&stats.TotalListings, &stats.AvgPrice, &stats.MinPrice, &stats.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: failed to aggregate listings: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT source, COUNT(*) FROM listings GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: failed to count listings by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("PostgresListingRepository: failed to scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: error during source counts iteration: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed') FROM fetch_sessions`,
	).Scan(&stats.SessionsTotal, &stats.SessionsCompleted)
	if err != nil {
		return nil, fmt.Errorf("PostgresListingRepository: failed to count fetch sessions: %w", err)
	}

	return stats, nil
}

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	var lat, lng *float64
	err := row.Scan(
		&l.ID, &l.Source, &l.PriceMonthly, &l.PriceText, &l.AreaText, &l.AreaNumeric, &l.Address,
		&lat, &lng, &l.Geohash, &l.Floor, &l.FloorTotal, &l.CategoryText, &l.Description,
		&l.Phones, &l.URL, &l.Photos, &l.AddedTime, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		l.Coordinates = domain.Coordinates{Lat: *lat, Lng: *lng}
	}
	return &l, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
