package normalizer

import (
	"cian-monitor-service/internal/core/domain"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// PriceTypeSquareMeter - цена указана за квадратный метр в месяц
	PriceTypeSquareMeter = "squareMeter"

	DefaultCountryCode = "7"
	GeohashPrecision   = 7

	maxCategories = 5
	maxPhotos     = 3
)

// Normalize превращает сырую запись провайдера в каноническое объявление.
// Функция тотальная: при отсутствии или порче любого поля подставляется значение по умолчанию.
// false возвращается только если не удалось извлечь идентификатор.
func Normalize(raw domain.RawOffer) (domain.Listing, bool) {
	id, ok := firstString(raw, idStrategies...)
	if !ok {
		return domain.Listing{}, false
	}

	listing := domain.Listing{
		ID:     id,
		Source: stringOr(raw, domain.DefaultSource, sourceStrategies...),
	}

	listing.AreaText, listing.AreaNumeric = resolveArea(raw)
	listing.PriceMonthly, listing.PriceText = resolvePrice(raw, listing.AreaNumeric)

	listing.Address = stringOr(raw, domain.UnknownValue, addressStrategies...)
	listing.Coordinates = resolveCoordinates(raw)
	listing.Geohash = resolveGeohash(listing.Coordinates)

	listing.Floor = stringOr(raw, domain.UnknownValue, floorStrategies...)
	listing.FloorTotal = stringOr(raw, domain.UnknownValue, floorTotalStrategies...)

	listing.CategoryText = resolveCategories(raw)
	listing.Description, _ = firstString(raw, descriptionStrategies...)
	listing.Phones = resolvePhones(raw)
	listing.URL, _ = firstString(raw, urlStrategies...)
	listing.AddedTime = stringOr(raw, domain.UnknownValue, addedTimeStrategies...)
	listing.Photos = resolvePhotos(raw)

	return listing, true
}

func resolveArea(raw domain.RawOffer) (string, float64) {
	text, ok := firstString(raw, areaStrategies...)
	if !ok {
		return domain.UnknownValue, 0
	}
	area, ok := firstFloat(raw, areaStrategies...)
	if !ok || area < 0 {
		area = 0
	}
	return text + " m²", area
}

// resolvePrice: прямая цена используется как месячная; цена за м² умножается
// на площадь только при положительной площади, иначе берется готовая строка провайдера.
func resolvePrice(raw domain.RawOffer, area float64) (float64, string) {
	price, ok := firstFloat(raw, priceStrategies...)
	if ok && price > 0 {
		priceType, _ := firstString(raw, priceTypeStrategies...)
		if priceType != PriceTypeSquareMeter {
			return price, formatMonthly(price)
		}
		if area > 0 {
			total := price * area
			return total, formatMonthly(total)
		}
	}

	return 0, stringOr(raw, domain.UnknownValue, formattedPriceStrats...)
}

func formatMonthly(price float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.0f ₽/month", price)
}

func resolveCoordinates(raw domain.RawOffer) domain.Coordinates {
	lat, _ := firstFloat(raw, latStrategies...)
	lng, _ := firstFloat(raw, lngStrategies...)
	return domain.Coordinates{Lat: lat, Lng: lng}
}

func resolveGeohash(c domain.Coordinates) string {
	if c.IsZero() || c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return ""
	}
	return geohash.EncodeWithPrecision(c.Lat, c.Lng, GeohashPrecision)
}

func resolveCategories(raw domain.RawOffer) string {
	items := firstList(raw, specialtyStrategies...)

	names := make([]string, 0, maxCategories)
	for i, item := range items {
		if i >= maxCategories {
			break
		}
		var name string
		switch v := item.(type) {
		case string:
			name = strings.TrimSpace(v)
		default:
			if obj, ok := asMap(v); ok {
				name, _ = firstString(domain.RawOffer(obj), specialtyNameStrats...)
			}
		}
		if name != "" {
			names = append(names, capitalize(name))
		}
	}

	if len(names) == 0 {
		return domain.GeneralPurposeLabel
	}

	text := strings.Join(names, ", ")
	if len(items) > maxCategories {
		text += fmt.Sprintf(" and %d more", len(items)-maxCategories)
	}
	return text
}

// capitalize поднимает регистр первой буквы, остальное не трогает
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(language.Russian).String(string(r)) + s[size:]
}

func resolvePhones(raw domain.RawOffer) []string {
	items := firstList(raw, phonesStrategies...)
	phones := make([]string, 0, len(items))
	for _, item := range items {
		obj, ok := asMap(item)
		if !ok {
			continue
		}
		phone := domain.RawOffer(obj)

		number, ok := firstString(phone, field("number"))
		if !ok {
			continue
		}
		code := strings.TrimPrefix(stringOr(phone, DefaultCountryCode, field("countryCode")), "+")
		phones = append(phones, "+"+code+" "+number)
	}
	return phones
}

func resolvePhotos(raw domain.RawOffer) []string {
	items := firstList(raw, photosStrategies...)
	if len(items) > maxPhotos {
		items = items[:maxPhotos]
	}
	photos := make([]string, 0, len(items))
	for _, item := range items {
		var url string
		switch v := item.(type) {
		case string:
			url = strings.TrimSpace(v)
		default:
			if obj, ok := asMap(v); ok {
				url, _ = firstString(domain.RawOffer(obj), photoURLStrategies...)
			}
		}
		if url != "" {
			photos = append(photos, url)
		}
	}
	return photos
}
