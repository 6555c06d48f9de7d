package usecase

import (
	"cian-monitor-service/internal/core/domain"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errFakeStorage = errors.New("fake storage failure")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAdmissionStore хранит копии записей, как настоящее хранилище
type fakeAdmissionStore struct {
	mu      sync.Mutex
	records map[string]domain.AdmissionRecord
	getErr  error
	saves   int
}

func newFakeAdmissionStore() *fakeAdmissionStore {
	return &fakeAdmissionStore{records: make(map[string]domain.AdmissionRecord)}
}

func (s *fakeAdmissionStore) Get(_ context.Context, userID string) (*domain.AdmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeAdmissionStore) Save(_ context.Context, record domain.AdmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.records[record.UserID] = record
	return nil
}

func (s *fakeAdmissionStore) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil
	}
	rec.LastFetchAt = nil
	rec.FetchCountToday = 0
	s.records[userID] = rec
	return nil
}

func (s *fakeAdmissionStore) Global(_ context.Context, today string) (*domain.AdmissionGlobalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &domain.AdmissionGlobalStats{TotalUsers: len(s.records)}
	for _, rec := range s.records {
		stats.TotalFetches += rec.FetchCountTotal
		if rec.CountersDay == today {
			stats.FetchesToday += rec.FetchCountToday
		}
		if rec.LastFetchAt != nil && (stats.LastFetchAt == nil || rec.LastFetchAt.After(*stats.LastFetchAt)) {
			last := *rec.LastFetchAt
			stats.LastFetchAt = &last
		}
	}
	return stats, nil
}

func (s *fakeAdmissionStore) record(userID string) (domain.AdmissionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok
}

type fakeListingStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
	seen     map[string]domain.IDSet

	upsertErr   error
	saveSeenErr error
	upserts     int
	seenSaves   int
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{
		listings: make(map[string]domain.Listing),
		seen:     make(map[string]domain.IDSet),
	}
}

func (s *fakeListingStore) UpsertListing(_ context.Context, listing domain.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return false, s.upsertErr
	}
	s.upserts++
	_, exists := s.listings[listing.ID]
	s.listings[listing.ID] = listing
	return !exists, nil
}

func (s *fakeListingStore) GetSeenIDs(_ context.Context, userID string) domain.IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewIDSet().Union(s.seen[userID])
}

func (s *fakeListingStore) SaveSeenIDs(_ context.Context, userID string, ids domain.IDSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveSeenErr != nil {
		return s.saveSeenErr
	}
	s.seenSaves++
	s.seen[userID] = domain.NewIDSet().Union(ids)
	return nil
}

func (s *fakeListingStore) GetListing(_ context.Context, id string) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return &listing, nil
}

func (s *fakeListingStore) ListListings(_ context.Context, filter domain.ListingsFilter) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.listings))
	for id, l := range s.listings {
		if filter.Source == "" || l.Source == filter.Source {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := []domain.Listing{}
	for i := filter.Offset; i < len(ids) && len(out) < filter.Limit; i++ {
		out = append(out, s.listings[ids[i]])
	}
	return out, nil
}

func (s *fakeListingStore) DeleteListingsOlderThan(_ context.Context, days int) (int64, error) {
	return int64(days), nil
}

func (s *fakeListingStore) GetStatistics(_ context.Context) (*domain.StoreStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.StoreStatistics{TotalListings: int64(len(s.listings))}, nil
}

func (s *fakeListingStore) seenIDs(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[userID].Sorted()
}

type fakeProvider struct {
	mu     sync.Mutex
	result *domain.SearchResult
	err    error
	calls  int
}

func (p *fakeProvider) SearchOffers(_ context.Context) (*domain.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type finishedSession struct {
	outcome domain.FetchOutcome
	totals  domain.FetchSessionTotals
}

type fakeSessions struct {
	mu       sync.Mutex
	started  int
	finished map[uuid.UUID]finishedSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{finished: make(map[uuid.UUID]finishedSession)}
}

func (s *fakeSessions) StartSession(_ context.Context, _ string, _ domain.FetchMode) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return uuid.New(), nil
}

func (s *fakeSessions) FinishSession(_ context.Context, id uuid.UUID, outcome domain.FetchOutcome, totals domain.FetchSessionTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[id] = finishedSession{outcome: outcome, totals: totals}
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.FetchResultEvent
	err    error
}

func (e *fakeEvents) PublishFetchResult(_ context.Context, event domain.FetchResultEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *fakeEvents) outcomes() []domain.FetchOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.FetchOutcome, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Outcome)
	}
	return out
}

func offers(ids ...string) []domain.RawOffer {
	out := make([]domain.RawOffer, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RawOffer{
			"id":           id,
			"totalArea":    "50",
			"bargainTerms": map[string]interface{}{"price": float64(1000), "priceType": "squareMeter"},
		})
	}
	return out
}

func listingIDs(listings []domain.Listing) []string {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	return ids
}
