package normalizer

import (
	"bytes"
	"cian-monitor-service/internal/core/domain"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFromJSON(t *testing.T, body string) domain.RawOffer {
	t.Helper()
	dec := json.NewDecoder(bytes.NewBufferString(body))
	dec.UseNumber()
	var raw domain.RawOffer
	require.NoError(t, dec.Decode(&raw))
	return raw
}

func TestNormalize_PriceResolution(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantPrice    float64
		wantText     string
		wantAreaNum  float64
		wantAreaText string
	}{
		{
			name:         "price per square meter multiplied by area",
			body:         `{"id": 1, "totalArea": "50", "bargainTerms": {"price": 1000, "priceType": "squareMeter"}}`,
			wantPrice:    50000,
			wantText:     "50,000 ₽/month",
			wantAreaNum:  50,
			wantAreaText: "50 m²",
		},
		{
			name:         "direct monthly price",
			body:         `{"id": 2, "totalArea": "120.5", "bargainTerms": {"price": 45000}}`,
			wantPrice:    45000,
			wantText:     "45,000 ₽/month",
			wantAreaNum:  120.5,
			wantAreaText: "120.5 m²",
		},
		{
			name:         "price per square meter without area falls back to formatted price",
			body:         `{"id": 3, "bargainTerms": {"price": 1000, "priceType": "squareMeter"}, "formattedShortPrice": "1 000 ₽/м²"}`,
			wantPrice:    0,
			wantText:     "1 000 ₽/м²",
			wantAreaNum:  0,
			wantAreaText: domain.UnknownValue,
		},
		{
			name:         "price per square meter with zero area",
			body:         `{"id": 4, "totalArea": "0", "bargainTerms": {"price": 1000, "priceType": "squareMeter"}, "formattedShortPrice": "от 1 000 ₽"}`,
			wantPrice:    0,
			wantText:     "от 1 000 ₽",
			wantAreaNum:  0,
			wantAreaText: "0 m²",
		},
		{
			name:         "unparsable area",
			body:         `{"id": 5, "totalArea": "около 40", "bargainTerms": {"price": 900, "priceType": "squareMeter"}}`,
			wantPrice:    0,
			wantText:     domain.UnknownValue,
			wantAreaNum:  0,
			wantAreaText: "около 40 m²",
		},
		{
			name:         "numeric area with comma",
			body:         `{"id": 6, "totalArea": "10,5", "bargainTerms": {"price": 100, "priceType": "squareMeter"}}`,
			wantPrice:    1050,
			wantText:     "1,050 ₽/month",
			wantAreaNum:  10.5,
			wantAreaText: "10,5 m²",
		},
		{
			name:         "zero price is treated as missing",
			body:         `{"id": 7, "bargainTerms": {"price": 0}, "formattedShortPrice": "по запросу"}`,
			wantPrice:    0,
			wantText:     "по запросу",
			wantAreaNum:  0,
			wantAreaText: domain.UnknownValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, ok := Normalize(rawFromJSON(t, tt.body))
			require.True(t, ok)
			assert.InDelta(t, tt.wantPrice, listing.PriceMonthly, 0.001)
			assert.Equal(t, tt.wantText, listing.PriceText)
			assert.InDelta(t, tt.wantAreaNum, listing.AreaNumeric, 0.001)
			assert.Equal(t, tt.wantAreaText, listing.AreaText)
		})
	}
}

func TestNormalize_EmptyRecordHasNoID(t *testing.T) {
	_, ok := Normalize(domain.RawOffer{})
	assert.False(t, ok)

	_, ok = Normalize(domain.RawOffer{"id": ""})
	assert.False(t, ok)
}

func TestNormalize_MissingNestedObjectsUseDefaults(t *testing.T) {
	listing, ok := Normalize(domain.RawOffer{"id": json.Number("42")})
	require.True(t, ok)

	assert.Equal(t, "42", listing.ID)
	assert.Equal(t, domain.DefaultSource, listing.Source)
	assert.Zero(t, listing.AreaNumeric)
	assert.Zero(t, listing.PriceMonthly)
	assert.Equal(t, domain.UnknownValue, listing.Address)
	assert.Equal(t, domain.GeneralPurposeLabel, listing.CategoryText)
	assert.Empty(t, listing.Phones)
	assert.NotNil(t, listing.Phones)
	assert.Empty(t, listing.Photos)
	assert.True(t, listing.Coordinates.IsZero())
	assert.Empty(t, listing.Geohash)
	assert.Equal(t, domain.UnknownValue, listing.Floor)
	assert.Equal(t, domain.UnknownValue, listing.FloorTotal)
	assert.Equal(t, domain.UnknownValue, listing.AddedTime)
}

func TestNormalize_WrongTypesDoNotPanic(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 7,
		"geo": "not an object",
		"building": [1, 2],
		"bargainTerms": {"price": "abc"},
		"specialty": {"specialties": "office"},
		"phones": [null, 5, {"number": 123}],
		"photos": {"fullUrl": "x"}
	}`)

	listing, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, domain.UnknownValue, listing.Address)
	assert.Equal(t, domain.UnknownValue, listing.FloorTotal)
	assert.Equal(t, domain.GeneralPurposeLabel, listing.CategoryText)
	assert.Equal(t, []string{"+7 123"}, listing.Phones)
	assert.Empty(t, listing.Photos)
}

func TestNormalize_IDIsString(t *testing.T) {
	tests := []struct {
		name string
		raw  domain.RawOffer
		want string
	}{
		{"json number", domain.RawOffer{"id": json.Number("293847561")}, "293847561"},
		{"float", domain.RawOffer{"id": float64(293847561)}, "293847561"},
		{"string", domain.RawOffer{"id": " abc "}, "abc"},
		{"fallback key", domain.RawOffer{"offerId": json.Number("5")}, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, ok := Normalize(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, listing.ID)
		})
	}
}

func TestNormalize_Categories(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "empty list",
			body: `{"id": 1, "specialty": {"specialties": []}}`,
			want: domain.GeneralPurposeLabel,
		},
		{
			name: "up to five",
			body: `{"id": 1, "specialty": {"specialties": [{"rusName": "офис"}, {"rusName": "Склад"}]}}`,
			want: "Офис, Склад",
		},
		{
			name: "more than five",
			body: `{"id": 1, "specialty": {"specialties": [
				{"rusName": "a"}, {"rusName": "b"}, {"rusName": "c"},
				{"rusName": "d"}, {"rusName": "e"}, {"rusName": "f"}, {"rusName": "g"}]}}`,
			want: "A, B, C, D, E and 2 more",
		},
		{
			name: "entries without names are skipped",
			body: `{"id": 1, "specialty": {"specialties": [{"id": 3}, {"rusName": "кафе"}]}}`,
			want: "Кафе",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, ok := Normalize(rawFromJSON(t, tt.body))
			require.True(t, ok)
			assert.Equal(t, tt.want, listing.CategoryText)
		})
	}
}

func TestNormalize_PhonesAndPhotos(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 10,
		"phones": [
			{"countryCode": "7", "number": "9161234567"},
			{"countryCode": "+375", "number": "291112233"},
			{"number": "4950000000"},
			{"countryCode": "7", "number": ""}
		],
		"photos": [
			{"fullUrl": "https://img/1.jpg"},
			{"fullUrl": ""},
			{"fullUrl": "https://img/3.jpg"},
			{"fullUrl": "https://img/4.jpg"}
		]
	}`)

	listing, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, []string{"+7 9161234567", "+375 291112233", "+7 4950000000"}, listing.Phones)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/3.jpg"}, listing.Photos)
}

func TestNormalize_FullRecord(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 301,
		"totalArea": "85",
		"bargainTerms": {"price": 170000},
		"geo": {"userInput": "Калининград, ул. Ленина, 1", "coordinates": {"lat": 54.71, "lng": 20.51}},
		"floorNumber": 2,
		"building": {"floorsCount": 5},
		"description": "Помещение свободного назначения",
		"fullUrl": "https://kaliningrad.cian.ru/rent/commercial/301/",
		"humanizedTimedelta": "2 часа назад"
	}`)

	listing, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, "301", listing.ID)
	assert.Equal(t, "Калининград, ул. Ленина, 1", listing.Address)
	assert.InDelta(t, 54.71, listing.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 20.51, listing.Coordinates.Lng, 1e-9)
	assert.Len(t, listing.Geohash, GeohashPrecision)
	assert.Equal(t, "2", listing.Floor)
	assert.Equal(t, "5", listing.FloorTotal)
	assert.Equal(t, "2 часа назад", listing.AddedTime)
	assert.Equal(t, "https://kaliningrad.cian.ru/rent/commercial/301/", listing.URL)
	assert.InDelta(t, 170000, listing.PriceMonthly, 0.001)
}

func TestTruncateForDisplay(t *testing.T) {
	assert.Equal(t, "short", TruncateForDisplay("short", 80))
	assert.Equal(t, "абв...", TruncateForDisplay("абвгд", 3))
	assert.Equal(t, "abc", TruncateForDisplay("abc", 0))
}

func TestDisplay_DoesNotTouchStoredListing(t *testing.T) {
	long := strings.Repeat("д", 250)
	address := strings.Repeat("a", 100)
	listing := domain.Listing{ID: "1", Description: long, Address: address, Floor: "2", FloorTotal: "9"}

	view := Display(listing)

	assert.Equal(t, DescriptionDisplayLimit+len(ellipsis), len([]rune(view.Description)))
	assert.Equal(t, AddressDisplayLimit+len(ellipsis), len([]rune(view.Address)))
	assert.Equal(t, "2/9", view.Floor)
	assert.Equal(t, long, listing.Description)
	assert.Equal(t, address, listing.Address)
}
