package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FetchMode - режим запуска поиска
type FetchMode string

const (
	// FetchModeFull возвращает все найденные объявления
	FetchModeFull FetchMode = "full"
	// FetchModeIncremental возвращает только объявления, которых пользователь еще не видел
	FetchModeIncremental FetchMode = "incremental"
)

// ParseFetchMode разбирает строковое представление режима
func ParseFetchMode(s string) (FetchMode, error) {
	switch FetchMode(strings.ToLower(strings.TrimSpace(s))) {
	case FetchModeFull:
		return FetchModeFull, nil
	case FetchModeIncremental, "":
		return FetchModeIncremental, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// IDSet - множество идентификаторов объявлений
type IDSet map[string]struct{}

// NewIDSet создает множество из перечисленных идентификаторов
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union возвращает новое множество, не изменяя исходные
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out.Add(id)
	}
	for id := range other {
		out.Add(id)
	}
	return out
}

// Sorted возвращает идентификаторы в отсортированном порядке
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SearchResult - ответ провайдера поиска
type SearchResult struct {
	Offers     []RawOffer
	TotalCount int // offerCount из ответа провайдера
}

// FetchStats - сводная статистика одного цикла
type FetchStats struct {
	TotalCount    int
	NewCount      int
	SeenCount     int
	Dropped       int // записи без идентификатора
	Inserted      int // записи, которых раньше не было в хранилище
	StoreFailures int
	ProviderTotal int
	SeenSetSaved  bool
	Elapsed       time.Duration
	Timestamp     time.Time
}

// FetchResult - результат цикла поиска для вызывающей стороны
type FetchResult struct {
	SessionID uuid.UUID
	UserID    string
	Mode      FetchMode

	Blocked   bool
	Admission AdmissionInfo

	Listings []Listing
	Stats    FetchStats
}

// FetchOutcome - итог цикла для событий и сессий
type FetchOutcome string

const (
	FetchOutcomeCompleted FetchOutcome = "completed"
	FetchOutcomeBlocked   FetchOutcome = "blocked"
	FetchOutcomeFailed    FetchOutcome = "failed"
)

// FetchSessionTotals - итоги сессии для журнала
type FetchSessionTotals struct {
	TotalParsed int
	TotalNew    int
	TotalSaved  int
	Error       string
}

// FetchResultEvent - событие для слоя бота с результатом цикла
type FetchResultEvent struct {
	EventID    uuid.UUID
	SessionID  uuid.UUID
	UserID     string
	Mode       FetchMode
	Outcome    FetchOutcome
	Admission  AdmissionInfo
	Stats      FetchStats
	Listings   []Listing
	Error      string
	OccurredAt time.Time
}
