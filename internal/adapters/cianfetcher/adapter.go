package cianfetcher

import (
	"cian-monitor-service/internal/constants"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Config - параметры запроса и политики повторов
type Config struct {
	APIURL            string
	RegionID          int
	OfficeTypes       []int
	PublishPeriod     int
	ByCommercialOwner bool

	// Timeout ограничивает один HTTP-запрос
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// RetryJitter - верхняя граница случайной добавки к RetryDelay
	RetryJitter time.Duration
	// Дополнительные паузы после 429 и 403
	TooManyRequestsDelay time.Duration
	ForbiddenDelay       time.Duration

	// RequestsPerSecond ограничивает частоту запросов процесса; 0 - без ограничения
	RequestsPerSecond float64
	UserAgent         string
	// Origin подставляется в заголовки Origin и Referer, пусто - не передавать
	Origin string
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		APIURL:               constants.DefaultCianAPIURL,
		RegionID:             constants.DefaultCianRegionID,
		OfficeTypes:          constants.DefaultCianOfficeTypes,
		PublishPeriod:        constants.DefaultCianPublishPeriod,
		ByCommercialOwner:    true,
		Timeout:              30 * time.Second,
		MaxRetries:           3,
		RetryDelay:           10 * time.Second,
		RetryJitter:          5 * time.Second,
		TooManyRequestsDelay: 30 * time.Second,
		ForbiddenDelay:       60 * time.Second,
		RequestsPerSecond:    0.2,
		UserAgent:            constants.CianUserAgent,
		Origin:               constants.DefaultCianOrigin,
	}
}

// CianFetcherAdapter отвечает за все обращения к API Cian
type CianFetcherAdapter struct {
	// родительский коллектор, клоны наследуют его лимиты
	collector *colly.Collector
	cfg       Config
	body      []byte
	limiter   *rate.Limiter

	jitter func(max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewCianFetcherAdapter(cfg Config) (*CianFetcherAdapter, error) {
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("CianFetcherAdapter: invalid api url %q", cfg.APIURL)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.CianUserAgent
	}

	body, err := json.Marshal(newSearchRequest(cfg))
	if err != nil {
		return nil, fmt.Errorf("CianFetcherAdapter: failed to build request body: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.SetRequestTimeout(cfg.Timeout)

	err = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("CianFetcherAdapter: failed to set limit rule: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &CianFetcherAdapter{
		collector: c,
		cfg:       cfg,
		body:      body,
		limiter:   rate.NewLimiter(limit, 1),
		jitter:    randomJitter,
		sleep:     sleepContext,
	}, nil
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
