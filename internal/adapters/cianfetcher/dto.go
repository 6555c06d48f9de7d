package cianfetcher

import (
	"cian-monitor-service/internal/constants"
	"cian-monitor-service/internal/core/domain"
	"encoding/json"
)

// Фильтры jsonQuery передаются в виде {"type": "term"|"terms", "value": ...}
type term struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

func single(v interface{}) term { return term{Type: "term", Value: v} }
func many(v interface{}) term   { return term{Type: "terms", Value: v} }

type jsonQuery struct {
	Type                string `json:"_type"`
	EngineVersion       term   `json:"engine_version"`
	OfficeType          term   `json:"office_type"`
	IsByCommercialOwner *term  `json:"is_by_commercial_owner,omitempty"`
	Region              term   `json:"region"`
	PublishPeriod       term   `json:"publish_period"`
}

type searchRequest struct {
	JSONQuery jsonQuery `json:"jsonQuery"`
}

func newSearchRequest(cfg Config) searchRequest {
	q := jsonQuery{
		Type:          constants.CianOfferTypeCommercialRent,
		EngineVersion: single(constants.CianEngineVersion),
		OfficeType:    many(cfg.OfficeTypes),
		Region:        many([]int{cfg.RegionID}),
		PublishPeriod: single(cfg.PublishPeriod),
	}
	if cfg.ByCommercialOwner {
		owner := single(true)
		q.IsByCommercialOwner = &owner
	}
	return searchRequest{JSONQuery: q}
}

type searchResponse struct {
	Data *searchResponseData `json:"data"`
}

type searchResponseData struct {
	SuggestOffersSerializedList []domain.RawOffer `json:"suggestOffersSerializedList"`
	OffersSerialized            []domain.RawOffer `json:"offersSerialized"`
	OfferCount                  json.Number       `json:"offerCount"`
}

// toSearchResult берет основной список, а при его отсутствии - запасной
func (r searchResponse) toSearchResult() *domain.SearchResult {
	if r.Data == nil {
		return &domain.SearchResult{Offers: []domain.RawOffer{}}
	}
	offers := r.Data.SuggestOffersSerializedList
	if len(offers) == 0 {
		offers = r.Data.OffersSerialized
	}
	if offers == nil {
		offers = []domain.RawOffer{}
	}
	return &domain.SearchResult{Offers: offers, TotalCount: offerCount(r.Data.OfferCount)}
}

func offerCount(n json.Number) int {
	if v, err := n.Int64(); err == nil {
		return int(v)
	}
	if f, err := n.Float64(); err == nil && f > 0 {
		return int(f)
	}
	return 0
}
