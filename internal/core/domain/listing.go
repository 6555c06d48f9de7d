package domain

import "time"

// DefaultSource - источник по умолчанию, если провайдер его не указал
const DefaultSource = "cian"

// Значения-заглушки для отсутствующих полей
const (
	UnknownValue        = "unknown"
	GeneralPurposeLabel = "general purpose"
)

// RawOffer - сырое объявление в том виде, в каком его вернул провайдер (разобранный JSON-объект)
type RawOffer map[string]interface{}

// Coordinates - географические координаты объекта
type Coordinates struct {
	Lat float64
	Lng float64
}

// IsZero сообщает, что координаты не были получены
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Listing - каноническая запись объявления
type Listing struct {
	ID     string
	Source string

	PriceMonthly float64
	PriceText    string

	AreaText    string
	AreaNumeric float64

	Address     string
	Coordinates Coordinates
	Geohash     string

	Floor      string
	FloorTotal string

	CategoryText string
	Description  string
	Phones       []string
	URL          string
	Photos       []string
	AddedTime    string

	// Заполняются хранилищем
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListingDisplay - укороченное представление объявления для отчетов.
// Хранимая запись при этом не меняется.
type ListingDisplay struct {
	ID           string
	PriceText    string
	AreaText     string
	Address      string
	Floor        string
	CategoryText string
	Description  string
	Phones       []string
	URL          string
	Photos       []string
	AddedTime    string
}

// ListingsFilter - параметры выборки объявлений из хранилища
type ListingsFilter struct {
	Limit  int
	Offset int
	Source string // пустая строка - без фильтра
}
