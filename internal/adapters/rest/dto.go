package rest

import (
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/normalizer"
	"time"

	"github.com/google/uuid"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type RunFetchRequest struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
}

type AdmissionResponse struct {
	Status          string     `json:"status"`
	WaitHours       int        `json:"wait_hours"`
	WaitMinutes     int        `json:"wait_minutes"`
	NextAvailableAt *time.Time `json:"next_available_at,omitempty"`
	LastFetchAt     *time.Time `json:"last_fetch_at,omitempty"`
	FetchCountToday int        `json:"fetch_count_today"`
	FetchCountTotal int        `json:"fetch_count_total"`
}

type FetchStatsResponse struct {
	TotalCount    int       `json:"total_count"`
	NewCount      int       `json:"new_count"`
	SeenCount     int       `json:"seen_count"`
	Dropped       int       `json:"dropped"`
	Inserted      int       `json:"inserted"`
	StoreFailures int       `json:"store_failures"`
	ProviderTotal int       `json:"provider_total"`
	SeenSetSaved  bool      `json:"seen_set_saved"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// ListingDisplayResponse - укороченное объявление в ответе на запуск поиска
type ListingDisplayResponse struct {
	ID           string   `json:"id"`
	PriceText    string   `json:"price_text"`
	AreaText     string   `json:"area_text"`
	Address      string   `json:"address"`
	Floor        string   `json:"floor"`
	CategoryText string   `json:"category_text"`
	Description  string   `json:"description"`
	Phones       []string `json:"phones"`
	URL          string   `json:"url"`
	Photos       []string `json:"photos"`
	AddedTime    string   `json:"added_time"`
}

type RunFetchResponse struct {
	SessionID string                   `json:"session_id,omitempty"`
	UserID    string                   `json:"user_id"`
	Mode      string                   `json:"mode"`
	Blocked   bool                     `json:"blocked"`
	Admission AdmissionResponse        `json:"admission"`
	Stats     FetchStatsResponse       `json:"stats"`
	Listings  []ListingDisplayResponse `json:"listings"`
}

type CoordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ListingResponse - полная хранимая запись
type ListingResponse struct {
	ID           string               `json:"id"`
	Source       string               `json:"source"`
	PriceMonthly float64              `json:"price_monthly"`
	PriceText    string               `json:"price_text"`
	AreaText     string               `json:"area_text"`
	AreaNumeric  float64              `json:"area_numeric"`
	Address      string               `json:"address"`
	Coordinates  *CoordinatesResponse `json:"coordinates,omitempty"`
	Geohash      string               `json:"geohash,omitempty"`
	Floor        string               `json:"floor"`
	FloorTotal   string               `json:"floor_total"`
	CategoryText string               `json:"category_text"`
	Description  string               `json:"description"`
	Phones       []string             `json:"phones"`
	URL          string               `json:"url"`
	Photos       []string             `json:"photos"`
	AddedTime    string               `json:"added_time"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type ListingsResponse struct {
	Items  []ListingResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type AdmissionRecordResponse struct {
	LastFetchAt      *time.Time `json:"last_fetch_at,omitempty"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	LastAttemptOK    bool       `json:"last_attempt_ok"`
	FetchCountToday  int        `json:"fetch_count_today"`
	FetchCountTotal  int        `json:"fetch_count_total"`
	FailedCountTotal int        `json:"failed_count_total"`
	CountersDay      string     `json:"counters_day"`
}

type UserAdmissionResponse struct {
	UserID   string                   `json:"user_id"`
	Allowed  bool                     `json:"allowed"`
	Decision AdmissionResponse        `json:"decision"`
	Record   *AdmissionRecordResponse `json:"record,omitempty"`
}

type GlobalAdmissionResponse struct {
	Enabled       bool       `json:"enabled"`
	IntervalHours float64    `json:"interval_hours"`
	TotalUsers    int        `json:"total_users"`
	TotalFetches  int        `json:"total_fetches"`
	FetchesToday  int        `json:"fetches_today"`
	LastFetchAt   *time.Time `json:"last_fetch_at,omitempty"`
}

type StatisticsResponse struct {
	TotalListings     int64            `json:"total_listings"`
	AvgPrice          float64          `json:"avg_price"`
	MinPrice          float64          `json:"min_price"`
	MaxPrice          float64          `json:"max_price"`
	BySource          map[string]int64 `json:"by_source"`
	SessionsTotal     int64            `json:"sessions_total"`
	SessionsCompleted int64            `json:"sessions_completed"`
}

type CleanupResponse struct {
	Deleted       int64 `json:"deleted"`
	OlderThanDays int   `json:"older_than_days"`
}

func toAdmissionResponse(info domain.AdmissionInfo) AdmissionResponse {
	return AdmissionResponse{
		Status:          string(info.Status),
		WaitHours:       info.WaitHours,
		WaitMinutes:     info.WaitMinutes,
		NextAvailableAt: info.NextAvailableAt,
		LastFetchAt:     info.LastFetchAt,
		FetchCountToday: info.FetchCountToday,
		FetchCountTotal: info.FetchCountTotal,
	}
}

func toRunFetchResponse(result *domain.FetchResult) RunFetchResponse {
	resp := RunFetchResponse{
		UserID:    result.UserID,
		Mode:      string(result.Mode),
		Blocked:   result.Blocked,
		Admission: toAdmissionResponse(result.Admission),
		Stats: FetchStatsResponse{
			TotalCount:    result.Stats.TotalCount,
			NewCount:      result.Stats.NewCount,
			SeenCount:     result.Stats.SeenCount,
			Dropped:       result.Stats.Dropped,
			Inserted:      result.Stats.Inserted,
			StoreFailures: result.Stats.StoreFailures,
			ProviderTotal: result.Stats.ProviderTotal,
			SeenSetSaved:  result.Stats.SeenSetSaved,
			ElapsedMs:     result.Stats.Elapsed.Milliseconds(),
			Timestamp:     result.Stats.Timestamp,
		},
		Listings: make([]ListingDisplayResponse, 0, len(result.Listings)),
	}
	if result.SessionID != uuid.Nil {
		resp.SessionID = result.SessionID.String()
	}
	for _, l := range result.Listings {
		d := normalizer.Display(l)
		resp.Listings = append(resp.Listings, ListingDisplayResponse{
			ID:           d.ID,
			PriceText:    d.PriceText,
			AreaText:     d.AreaText,
			Address:      d.Address,
			Floor:        d.Floor,
			CategoryText: d.CategoryText,
			Description:  d.Description,
			Phones:       nonNil(d.Phones),
			URL:          d.URL,
			Photos:       nonNil(d.Photos),
			AddedTime:    d.AddedTime,
		})
	}
	return resp
}

func toListingResponse(l domain.Listing) ListingResponse {
	resp := ListingResponse{
		ID:           l.ID,
		Source:       l.Source,
		PriceMonthly: l.PriceMonthly,
		PriceText:    l.PriceText,
		AreaText:     l.AreaText,
		AreaNumeric:  l.AreaNumeric,
		Address:      l.Address,
		Geohash:      l.Geohash,
		Floor:        l.Floor,
		FloorTotal:   l.FloorTotal,
		CategoryText: l.CategoryText,
		Description:  l.Description,
		Phones:       nonNil(l.Phones),
		URL:          l.URL,
		Photos:       nonNil(l.Photos),
		AddedTime:    l.AddedTime,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
	if !l.Coordinates.IsZero() {
		resp.Coordinates = &CoordinatesResponse{Lat: l.Coordinates.Lat, Lng: l.Coordinates.Lng}
	}
	return resp
}

func toUserAdmissionResponse(userID string, stats *domain.AdmissionUserStats) UserAdmissionResponse {
	resp := UserAdmissionResponse{
		UserID:   userID,
		Allowed:  stats.Allowed,
		Decision: toAdmissionResponse(stats.Decision),
	}
	if rec := stats.Record; rec != nil {
		resp.Record = &AdmissionRecordResponse{
			LastFetchAt:      rec.LastFetchAt,
			LastAttemptAt:    rec.LastAttemptAt,
			LastAttemptOK:    rec.LastAttemptOK,
			FetchCountToday:  rec.FetchCountToday,
			FetchCountTotal:  rec.FetchCountTotal,
			FailedCountTotal: rec.FailedCountTotal,
			CountersDay:      rec.CountersDay,
		}
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
