package domain

// StoreStatistics - агрегированная статистика хранилища объявлений
type StoreStatistics struct {
	TotalListings int64
	AvgPrice      float64 // только по объявлениям с известной ценой
	MinPrice      float64
	MaxPrice      float64
	BySource      map[string]int64

	SessionsTotal     int64
	SessionsCompleted int64
}
