package cianfetcher

import (
	"cian-monitor-service/internal/core/domain"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedServer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	lastBody  map[string]interface{}
	lastHdr   http.Header
}

type scriptedResponse struct {
	status int
	body   string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &s.lastBody)
	s.lastHdr = r.Header.Clone()

	resp := s.responses[len(s.responses)-1]
	if s.calls < len(s.responses) {
		resp = s.responses[s.calls]
	}
	s.calls++

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (s *scriptedServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

const okBody = `{"data": {"offerCount": 120, "suggestOffersSerializedList": [
	{"id": 101, "totalArea": "50", "bargainTerms": {"price": 1000, "priceType": "squareMeter"}},
	{"id": 102, "bargainTerms": {"price": 45000}}
]}}`

func newTestAdapter(t *testing.T, responses ...scriptedResponse) (*CianFetcherAdapter, *scriptedServer, *[]time.Duration) {
	t.Helper()
	srv := &scriptedServer{responses: responses}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.APIURL = ts.URL + "/offers/get-offers/"
	cfg.RequestsPerSecond = 0
	cfg.Timeout = 5 * time.Second

	adapter, err := NewCianFetcherAdapter(cfg)
	require.NoError(t, err)

	var sleeps []time.Duration
	adapter.jitter = func(time.Duration) time.Duration { return 0 }
	adapter.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return adapter, srv, &sleeps
}

func TestSearchOffers_Success(t *testing.T) {
	adapter, srv, sleeps := newTestAdapter(t, scriptedResponse{http.StatusOK, okBody})

	res, err := adapter.SearchOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, res.TotalCount)
	require.Len(t, res.Offers, 2)
	assert.Equal(t, json.Number("101"), res.Offers[0]["id"])
	assert.Equal(t, 1, srv.callCount())
	assert.Empty(t, *sleeps)

	query, ok := srv.lastBody["jsonQuery"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "commercialrent", query["_type"])
	assert.Equal(t, map[string]interface{}{"type": "terms", "value": []interface{}{float64(4927)}}, query["region"])
	assert.Equal(t, map[string]interface{}{"type": "term", "value": true}, query["is_by_commercial_owner"])
	assert.Equal(t, "application/json", srv.lastHdr.Get("Content-Type"))
	assert.Equal(t, "https://perm.cian.ru", srv.lastHdr.Get("Origin"))
}

func TestSearchOffers_FallbackList(t *testing.T) {
	body := `{"data": {"offerCount": 1, "suggestOffersSerializedList": [], "offersSerialized": [{"id": "7"}]}}`
	adapter, _, _ := newTestAdapter(t, scriptedResponse{http.StatusOK, body})

	res, err := adapter.SearchOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, "7", res.Offers[0]["id"])
}

func TestSearchOffers_NoDataIsEmptyResult(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, scriptedResponse{http.StatusOK, `{}`})

	res, err := adapter.SearchOffers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Offers)
	assert.Zero(t, res.TotalCount)
}

func TestSearchOffers_RetriesOnTooManyRequests(t *testing.T) {
	adapter, srv, sleeps := newTestAdapter(t,
		scriptedResponse{http.StatusTooManyRequests, `{}`},
		scriptedResponse{http.StatusOK, okBody},
	)

	res, err := adapter.SearchOffers(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Offers, 2)
	assert.Equal(t, 2, srv.callCount())
	assert.Equal(t, []time.Duration{10*time.Second + 30*time.Second}, *sleeps)
}

func TestSearchOffers_ForbiddenBackoff(t *testing.T) {
	adapter, srv, sleeps := newTestAdapter(t, scriptedResponse{http.StatusForbidden, `{}`})

	_, err := adapter.SearchOffers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, 3, srv.callCount())
	assert.Equal(t, []time.Duration{70 * time.Second, 70 * time.Second}, *sleeps)
}

func TestSearchOffers_ServerErrorExhaustsRetries(t *testing.T) {
	adapter, srv, _ := newTestAdapter(t, scriptedResponse{http.StatusBadGateway, `oops`})

	_, err := adapter.SearchOffers(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, 3, srv.callCount())
}

func TestSearchOffers_NoRetryOnClientError(t *testing.T) {
	adapter, srv, sleeps := newTestAdapter(t, scriptedResponse{http.StatusNotFound, `{}`})

	_, err := adapter.SearchOffers(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, 1, srv.callCount())
	assert.Empty(t, *sleeps)
}

func TestSearchOffers_MalformedBodyNotRetried(t *testing.T) {
	adapter, srv, _ := newTestAdapter(t, scriptedResponse{http.StatusOK, `{"data": [`})

	_, err := adapter.SearchOffers(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.ErrorIs(t, err, errMalformedBody)
	assert.Equal(t, 1, srv.callCount())
}

func TestSearchOffers_CancelledContextStopsRetries(t *testing.T) {
	adapter, srv, _ := newTestAdapter(t, scriptedResponse{http.StatusServiceUnavailable, `{}`})
	ctx, cancel := context.WithCancel(context.Background())
	adapter.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := adapter.SearchOffers(ctx)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, srv.callCount())
}

func TestNewCianFetcherAdapter_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIURL = "::not a url"
	_, err := NewCianFetcherAdapter(cfg)
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&statusError{StatusCode: 0}, true},
		{&statusError{StatusCode: 429}, true},
		{&statusError{StatusCode: 403}, true},
		{&statusError{StatusCode: 500}, true},
		{&statusError{StatusCode: 404}, false},
		{&statusError{StatusCode: 400}, false},
		{errMalformedBody, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryable(tt.err), tt.err.Error())
	}
}
