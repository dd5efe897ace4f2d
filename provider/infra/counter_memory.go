package infra

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"provider-gateway/provider/domain"
)

// MemoryCounterStore é uma implementação simples em memória do CounterStore.
// Útil para testes e desenvolvimento de uma instância só.
//
// O mutex aqui só emula a atomicidade por chave do store remoto; com várias
// instâncias use RedisCounterStore.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	zset      map[string]float64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock troca o relógio (testes de TTL).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup precisa do mu travado. Entradas expiradas somem na leitura.
func (s *MemoryCounterStore) lookup(key string) *memEntry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !ent.expiresAt.IsZero() && !s.now().Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func (s *MemoryCounterStore) ttlOf(ent *memEntry) time.Duration {
	if ent.expiresAt.IsZero() {
		return -1
	}
	return ent.expiresAt.Sub(s.now())
}

func (s *MemoryCounterStore) IncrWithExpiry(_ context.Context, key string, by int64, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil {
		ent = &memEntry{}
		s.entries[key] = ent
	}
	cur, err := parseCounter(ent.value)
	if err != nil {
		return 0, 0, err
	}
	cur += by
	ent.value = []byte(strconv.FormatInt(cur, 10))
	if ent.expiresAt.IsZero() && ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	return cur, s.ttlOf(ent), nil
}

func (s *MemoryCounterStore) DecrBy(_ context.Context, key string, by int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil {
		ent = &memEntry{}
		s.entries[key] = ent
	}
	cur, err := parseCounter(ent.value)
	if err != nil {
		return 0, err
	}
	cur -= by
	ent.value = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil || ent.zset != nil {
		return nil, domain.ErrKeyNotFound
	}
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, nil
}

func (s *MemoryCounterStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.newValue(value, ttl)
	return nil
}

func (s *MemoryCounterStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(key) != nil {
		return false, nil
	}
	s.entries[key] = s.newValue(value, ttl)
	return true, nil
}

func (s *MemoryCounterStore) newValue(value []byte, ttl time.Duration) *memEntry {
	ent := &memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	return ent
}

func (s *MemoryCounterStore) ZAdd(_ context.Context, key string, score float64, member []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil || ent.zset == nil {
		ent = &memEntry{zset: make(map[string]float64)}
		s.entries[key] = ent
	}
	ent.zset[string(member)] = score
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryCounterStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil || ent.zset == nil {
		return nil, nil
	}
	type scored struct {
		member string
		score  float64
	}
	var items []scored
	for m, sc := range ent.zset {
		if sc >= min && sc <= max {
			items = append(items, scored{m, sc})
		}
	}
	// mesma ordem do Redis: score, depois member lexicográfico
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score < items[j].score
		}
		return items[i].member < items[j].member
	})
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it.member)
	}
	return out, nil
}

func (s *MemoryCounterStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.lookup(key)
	if ent == nil || ent.zset == nil {
		return 0, nil
	}
	var n int64
	for m, sc := range ent.zset {
		if sc >= min && sc <= max {
			delete(ent.zset, m)
			n++
		}
	}
	return n, nil
}

// Len é o número de chaves vivas.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if s.lookup(k) != nil {
			n++
		}
	}
	return n
}

func parseCounter(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
