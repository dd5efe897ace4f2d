package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalBucketStore mantém um token-bucket (x/time/rate) por chave em memória,
// com limpeza periódica de chaves ociosas. É o limitador do provider-stub: não
// é compartilhado entre réplicas, então não serve para o gateway.
type LocalBucketStore struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type BucketOption func(*LocalBucketStore)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *LocalBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketOption {
	return func(s *LocalBucketStore) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(s *LocalBucketStore) { s.now = now }
}

func NewLocalBucketStore(rps float64, burst int, opts ...BucketOption) *LocalBucketStore {
	s := &LocalBucketStore{
		buckets:      make(map[string]*bucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalBucketStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// Take consome um token da chave. Quando não há token, retorna false e o
// tempo até o próximo ficar disponível (usado como Retry-After).
func (s *LocalBucketStore) Take(key string) (bool, time.Duration) {
	now := s.now()
	lim := s.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, wait
}

func (s *LocalBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *LocalBucketStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor limpa chaves inativas até ctx ser cancelado.
func (s *LocalBucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
