package rabbitmq

import (
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/normalizer"
	"time"

	"github.com/google/uuid"
)

// FetchRequestDTO - входящий запрос на запуск поиска
type FetchRequestDTO struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
}

type AdmissionDTO struct {
	Status          string     `json:"status"`
	WaitHours       int        `json:"wait_hours"`
	WaitMinutes     int        `json:"wait_minutes"`
	NextAvailableAt *time.Time `json:"next_available_at"`
	LastFetchAt     *time.Time `json:"last_fetch_at"`
	FetchCountToday int        `json:"fetch_count_today"`
	FetchCountTotal int        `json:"fetch_count_total"`
}

type FetchStatsDTO struct {
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

type ListingDTO struct {
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

// FetchResultEventDTO - тело события FetchResultEvent/1.0.0
type FetchResultEventDTO struct {
	EventID    uuid.UUID     `json:"event_id"`
	SessionID  *uuid.UUID    `json:"session_id,omitempty"`
	UserID     string        `json:"user_id"`
	Mode       string        `json:"mode"`
	Outcome    string        `json:"outcome"`
	Admission  AdmissionDTO  `json:"admission"`
	Stats      FetchStatsDTO `json:"stats"`
	Listings   []ListingDTO  `json:"listings"`
	Error      string        `json:"error,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func toFetchResultEventDTO(event domain.FetchResultEvent) FetchResultEventDTO {
	dto := FetchResultEventDTO{
		EventID: event.EventID,
		UserID:  event.UserID,
		Mode:    string(event.Mode),
		Outcome: string(event.Outcome),
		Admission: AdmissionDTO{
			Status:          string(event.Admission.Status),
			WaitHours:       event.Admission.WaitHours,
			WaitMinutes:     event.Admission.WaitMinutes,
			NextAvailableAt: event.Admission.NextAvailableAt,
			LastFetchAt:     event.Admission.LastFetchAt,
			FetchCountToday: event.Admission.FetchCountToday,
			FetchCountTotal: event.Admission.FetchCountTotal,
		},
		Stats: FetchStatsDTO{
			TotalCount:    event.Stats.TotalCount,
			NewCount:      event.Stats.NewCount,
			SeenCount:     event.Stats.SeenCount,
			Dropped:       event.Stats.Dropped,
			Inserted:      event.Stats.Inserted,
			StoreFailures: event.Stats.StoreFailures,
			ProviderTotal: event.Stats.ProviderTotal,
			SeenSetSaved:  event.Stats.SeenSetSaved,
			ElapsedMs:     event.Stats.Elapsed.Milliseconds(),
			Timestamp:     event.Stats.Timestamp.UTC(),
		},
		Listings:   make([]ListingDTO, 0, len(event.Listings)),
		Error:      event.Error,
		OccurredAt: event.OccurredAt.UTC(),
	}

	if event.SessionID != uuid.Nil {
		id := event.SessionID
		dto.SessionID = &id
	}

	// в событие уходит укороченное представление
	for _, l := range event.Listings {
		d := normalizer.Display(l)
		dto.Listings = append(dto.Listings, ListingDTO{
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
	return dto
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
