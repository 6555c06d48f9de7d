package normalizer

import (
	"cian-monitor-service/internal/core/domain"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// accessor - одна стратегия извлечения значения из сырой записи.
// Для каждого поля задается упорядоченный список стратегий: первая сработавшая побеждает.
type accessor func(raw domain.RawOffer) (interface{}, bool)

// field обходит вложенные объекты по ключам: field("geo", "coordinates", "lat")
func field(keys ...string) accessor {
	return func(raw domain.RawOffer) (interface{}, bool) {
		var cur interface{} = map[string]interface{}(raw)
		for _, key := range keys {
			obj, ok := asMap(cur)
			if !ok {
				return nil, false
			}
			value, ok := obj[key]
			if !ok || value == nil {
				return nil, false
			}
			cur = value
		}
		return cur, true
	}
}

// Порядок стратегий для каждого поля
var (
	idStrategies          = []accessor{field("id"), field("offerId"), field("cianId")}
	sourceStrategies      = []accessor{field("source")}
	areaStrategies        = []accessor{field("totalArea"), field("area")}
	priceStrategies       = []accessor{field("bargainTerms", "price"), field("bargainTerms", "priceRur")}
	priceTypeStrategies   = []accessor{field("bargainTerms", "priceType")}
	formattedPriceStrats  = []accessor{field("formattedShortPrice"), field("formattedFullPrice")}
	addressStrategies     = []accessor{field("geo", "userInput"), field("address")}
	latStrategies         = []accessor{field("geo", "coordinates", "lat")}
	lngStrategies         = []accessor{field("geo", "coordinates", "lng"), field("geo", "coordinates", "lon")}
	floorStrategies       = []accessor{field("floorNumber")}
	floorTotalStrategies  = []accessor{field("building", "floorsCount")}
	specialtyStrategies   = []accessor{field("specialty", "specialties")}
	specialtyNameStrats   = []accessor{field("rusName"), field("name")}
	descriptionStrategies = []accessor{field("description")}
	phonesStrategies      = []accessor{field("phones")}
	urlStrategies         = []accessor{field("fullUrl"), field("url")}
	addedTimeStrategies   = []accessor{field("humanizedTimedelta")}
	photosStrategies      = []accessor{field("photos")}
	photoURLStrategies    = []accessor{field("fullUrl"), field("url")}
)

func firstString(raw domain.RawOffer, strategies ...accessor) (string, bool) {
	for _, get := range strategies {
		value, ok := get(raw)
		if !ok {
			continue
		}
		if s, ok := asString(value); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func stringOr(raw domain.RawOffer, def string, strategies ...accessor) string {
	if s, ok := firstString(raw, strategies...); ok {
		return s
	}
	return def
}

func firstFloat(raw domain.RawOffer, strategies ...accessor) (float64, bool) {
	for _, get := range strategies {
		value, ok := get(raw)
		if !ok {
			continue
		}
		if f, ok := asFloat(value); ok {
			return f, true
		}
	}
	return 0, false
}

func firstList(raw domain.RawOffer, strategies ...accessor) []interface{} {
	for _, get := range strategies {
		value, ok := get(raw)
		if !ok {
			continue
		}
		if list, ok := value.([]interface{}); ok {
			return list
		}
	}
	return nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case domain.RawOffer:
		return m, true
	}
	return nil, false
}

func asString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func asFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
