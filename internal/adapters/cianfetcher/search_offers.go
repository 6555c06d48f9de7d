package cianfetcher

import (
	"bytes"
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// statusError - ответ провайдера с кодом не 2xx или сетевая ошибка (StatusCode = 0)
type statusError struct {
	StatusCode int
	Err        error
}

func (e *statusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return fmt.Sprintf("unexpected status %d: %v", e.StatusCode, e.Err)
}

func (e *statusError) Unwrap() error { return e.Err }

var errMalformedBody = errors.New("malformed response body")

// retryable: 429, 403, 5xx и сетевые ошибки повторяются; прочие 4xx и битое тело - нет
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	switch {
	case se.StatusCode == 0:
		return true
	case se.StatusCode == http.StatusTooManyRequests, se.StatusCode == http.StatusForbidden:
		return true
	case se.StatusCode >= 500:
		return true
	default:
		return false
	}
}

func (a *CianFetcherAdapter) backoff(err error) time.Duration {
	d := a.cfg.RetryDelay + a.jitter(a.cfg.RetryJitter)
	var se *statusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			d += a.cfg.TooManyRequestsDelay
		case http.StatusForbidden:
			d += a.cfg.ForbiddenDelay
		}
	}
	return d
}

// SearchOffers выполняет один логический поиск с повторами при временных сбоях.
// Любая окончательная ошибка оборачивается в domain.ErrProviderUnavailable.
func (a *CianFetcherAdapter) SearchOffers(ctx context.Context) (*domain.SearchResult, error) {
	fetchLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "CianFetcherAdapter",
		"method":    "SearchOffers",
	})

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrProviderUnavailable, err)
		}

		result, err := a.post(ctx, fetchLogger)
		if err == nil {
			fetchLogger.Info("Offers received", port.Fields{
				"attempt":     attempt,
				"offers":      len(result.Offers),
				"offer_count": result.TotalCount,
			})
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == a.cfg.MaxRetries {
			break
		}

		delay := a.backoff(err)
		fetchLogger.Warn("Provider request failed, retrying", port.Fields{
			"attempt":  attempt,
			"error":    err.Error(),
			"delay_ms": delay.Milliseconds(),
		})
		if err := a.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("%v (retry aborted: %w)", lastErr, err)
			break
		}
	}

	fetchLogger.Error("Provider request failed", lastErr, port.Fields{"max_retries": a.cfg.MaxRetries})
	return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, lastErr)
}

// post делает одну попытку через одноразовый клон коллектора
func (a *CianFetcherAdapter) post(ctx context.Context, logger port.LoggerPort) (*domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &statusError{Err: err}
	}

	collector := a.collector.Clone()

	var (
		body       []byte
		respStatus int
		respErr    error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "application/json")
		r.Headers.Set("Accept", "application/json")
		if a.cfg.Origin != "" {
			r.Headers.Set("Origin", a.cfg.Origin)
			r.Headers.Set("Referer", a.cfg.Origin+"/")
		}
		logger.Debug("Making request to search offers", port.Fields{"url": r.URL.String()})
	})

	collector.OnResponse(func(r *colly.Response) {
		respStatus = r.StatusCode
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		respErr = &statusError{StatusCode: status, Err: err}
	})

	visitErr := collector.PostRaw(a.cfg.APIURL, a.body)
	collector.Wait()

	if respErr != nil {
		return nil, respErr
	}
	if visitErr != nil {
		return nil, &statusError{Err: visitErr}
	}
	if respStatus < 200 || respStatus > 299 {
		return nil, &statusError{StatusCode: respStatus, Err: errors.New(http.StatusText(respStatus))}
	}

	return decodeSearchResponse(body)
}

func decodeSearchResponse(body []byte) (*domain.SearchResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var resp searchResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return resp.toSearchResult(), nil
}
