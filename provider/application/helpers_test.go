package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"provider-gateway/provider/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// downStore simula um counter store fora do ar.
type downStore struct{}

func (downStore) IncrWithExpiry(context.Context, string, int64, time.Duration) (int64, time.Duration, error) {
	return 0, 0, domain.ErrStoreUnavailable
}
func (downStore) DecrBy(context.Context, string, int64) (int64, error) {
	return 0, domain.ErrStoreUnavailable
}
func (downStore) Get(context.Context, string) ([]byte, error) { return nil, domain.ErrStoreUnavailable }
func (downStore) Set(context.Context, string, []byte, time.Duration) error {
	return domain.ErrStoreUnavailable
}
func (downStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, domain.ErrStoreUnavailable
}
func (downStore) ZAdd(context.Context, string, float64, []byte, time.Duration) error {
	return domain.ErrStoreUnavailable
}
func (downStore) ZRangeByScore(context.Context, string, float64, float64) ([][]byte, error) {
	return nil, domain.ErrStoreUnavailable
}
func (downStore) ZRemRangeByScore(context.Context, string, float64, float64) (int64, error) {
	return 0, domain.ErrStoreUnavailable
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (s *recordingSink) Publish(_ context.Context, ev domain.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) thresholds() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Threshold)
	}
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	entries []domain.RequestLogEntry
}

func (o *recordingObserver) Observe(e domain.RequestLogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, e)
}

func (o *recordingObserver) all() []domain.RequestLogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.RequestLogEntry(nil), o.entries...)
}

// fakeProvider conta as chamadas e devolve o que os hooks mandarem.
type fakeProvider struct {
	calls atomic.Int64

	property  func(id string) (domain.PropertyDTO, error)
	valuation func(id string) (domain.ValuationDTO, error)
	market    func(zip string) (domain.MarketDataDTO, error)
	listings  func(c domain.ListingCriteria) ([]domain.ListingDTO, error)
}

func (p *fakeProvider) FetchProperty(_ context.Context, id string) (domain.PropertyDTO, error) {
	p.calls.Add(1)
	if p.property != nil {
		return p.property(id)
	}
	return domain.PropertyDTO{ID: id, Bedrooms: 3}, nil
}

func (p *fakeProvider) FetchValuation(_ context.Context, id string) (domain.ValuationDTO, error) {
	p.calls.Add(1)
	if p.valuation != nil {
		return p.valuation(id)
	}
	return domain.ValuationDTO{PropertyID: id, Estimate: 500000, Low: 450000, High: 550000}, nil
}

func (p *fakeProvider) FetchMarketData(_ context.Context, zip string) (domain.MarketDataDTO, error) {
	p.calls.Add(1)
	if p.market != nil {
		return p.market(zip)
	}
	return domain.MarketDataDTO{Zip: zip, MedianPrice: 410000}, nil
}

func (p *fakeProvider) SearchListings(_ context.Context, c domain.ListingCriteria) ([]domain.ListingDTO, error) {
	p.calls.Add(1)
	if p.listings != nil {
		return p.listings(c)
	}
	return []domain.ListingDTO{{ID: "L1", ListPrice: 300000}}, nil
}

// noSleep registra os delays pedidos sem dormir.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}
