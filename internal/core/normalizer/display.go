package normalizer

import (
	"cian-monitor-service/internal/core/domain"
	"strings"
)

// Пороги усечения в отчетах
const (
	DescriptionDisplayLimit = 200
	AddressDisplayLimit     = 80
)

const ellipsis = "..."

// TruncateForDisplay обрезает строку до limit символов (рун) и добавляет многоточие
func TruncateForDisplay(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + ellipsis
}

// Display строит представление для отчета. Сама запись не изменяется.
func Display(l domain.Listing) domain.ListingDisplay {
	return domain.ListingDisplay{
		ID:           l.ID,
		PriceText:    l.PriceText,
		AreaText:     l.AreaText,
		Address:      TruncateForDisplay(l.Address, AddressDisplayLimit),
		Floor:        l.Floor + "/" + l.FloorTotal,
		CategoryText: l.CategoryText,
		Description:  TruncateForDisplay(l.Description, DescriptionDisplayLimit),
		Phones:       append([]string(nil), l.Phones...),
		URL:          l.URL,
		Photos:       append([]string(nil), l.Photos...),
		AddedTime:    l.AddedTime,
	}
}
