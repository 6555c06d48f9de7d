package domain

import "time"

// AdmissionStatus - статус решения о допуске пользователя к запуску поиска
type AdmissionStatus string

const (
	AdmissionFirstTime AdmissionStatus = "first_time"
	AdmissionAllowed   AdmissionStatus = "allowed"
	AdmissionBlocked   AdmissionStatus = "blocked"
	AdmissionDisabled  AdmissionStatus = "disabled"
	AdmissionError     AdmissionStatus = "error"
)

// CountersDayLayout - формат календарного дня, к которому относится счетчик за сегодня
const CountersDayLayout = "2006-01-02"

// AdmissionRecord - состояние лимита для одного пользователя
type AdmissionRecord struct {
	UserID string

	// Время последнего успешного запуска, который учитывается в лимите
	LastFetchAt *time.Time

	LastAttemptAt *time.Time
	LastAttemptOK bool

	FetchCountToday  int
	FetchCountTotal  int
	FailedCountTotal int

	// День (в формате CountersDayLayout), к которому относится FetchCountToday
	CountersDay string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdmissionInfo - подробности решения гейта
type AdmissionInfo struct {
	Status AdmissionStatus

	// Оставшееся ожидание, заполняется для blocked
	WaitHours       int
	WaitMinutes     int
	NextAvailableAt *time.Time

	LastFetchAt     *time.Time
	FetchCountToday int
	FetchCountTotal int
}

// AdmissionUserStats - статистика лимита по пользователю
type AdmissionUserStats struct {
	Record   *AdmissionRecord // nil, если пользователь еще ни разу не запускал поиск
	Decision AdmissionInfo
	Allowed  bool
}

// AdmissionGlobalStats - статистика лимита по всем пользователям
type AdmissionGlobalStats struct {
	Enabled      bool
	Interval     time.Duration
	TotalUsers   int
	TotalFetches int
	FetchesToday int
	LastFetchAt  *time.Time
}
