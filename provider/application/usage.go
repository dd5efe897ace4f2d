package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"provider-gateway/provider/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultUsageRetention é quanto tempo o log de uso fica no store.
const DefaultUsageRetention = 7 * 24 * time.Hour

// UsageTracker grava uma RequestLogEntry por invocação do pipeline e
// agrega as métricas na leitura.
//
// O caminho de escrita é um único append (ZADD com score = timestamp);
// nenhum contador é mantido incrementalmente.
type UsageTracker struct {
	Store     domain.CounterStore
	Retention time.Duration
	Observers []domain.UsageObserver
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func (t UsageTracker) withDefaults() UsageTracker {
	if t.Retention <= 0 {
		t.Retention = DefaultUsageRetention
	}
	if t.Log == nil {
		t.Log = discardLogger()
	}
	if t.Now == nil {
		t.Now = time.Now
	}
	return t
}

func usageKey(accountID string) string {
	return fmt.Sprintf("usage:%s:log", accountID)
}

// Record é best-effort: falha do store é logada e não volta ao chamador.
func (t UsageTracker) Record(ctx context.Context, e domain.RequestLogEntry) {
	t = t.withDefaults()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	for _, o := range t.Observers {
		o.Observe(e)
	}

	body, err := json.Marshal(e)
	if err != nil {
		t.Log.WithError(err).Error("usage entry encode failed")
		return
	}
	score := float64(e.Timestamp.UnixMilli())
	if err := t.Store.ZAdd(ctx, usageKey(e.AccountID), score, body, t.Retention); err != nil {
		t.Log.WithError(err).WithFields(logrus.Fields{
			"account_id": e.AccountID,
			"endpoint":   e.Endpoint,
			"outcome":    string(e.Outcome),
		}).Warn("usage record failed")
	}
}

// Entries lê o log da conta dentro da janela [now-window, now].
func (t UsageTracker) Entries(ctx context.Context, accountID string, window time.Duration) ([]domain.RequestLogEntry, error) {
	t = t.withDefaults()
	now := t.Now()
	key := usageKey(accountID)

	// o trim das entradas antigas fica na leitura para manter Record em um append só
	if _, err := t.Store.ZRemRangeByScore(ctx, key, 0, float64(now.Add(-t.Retention).UnixMilli())); err != nil {
		t.Log.WithError(err).Warn("usage trim failed")
	}

	raws, err := t.Store.ZRangeByScore(ctx, key, float64(now.Add(-window).UnixMilli()), float64(now.UnixMilli()))
	if err != nil {
		return nil, err
	}
	out := make([]domain.RequestLogEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.RequestLogEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			t.Log.WithError(err).Warn("skipping unreadable usage entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Metrics agrega as entradas da janela.
func (t UsageTracker) Metrics(ctx context.Context, accountID string, window time.Duration) (domain.UsageMetrics, error) {
	t = t.withDefaults()
	if window <= 0 {
		return domain.UsageMetrics{}, domain.NewValidationError("metrics window must be positive")
	}
	entries, err := t.Entries(ctx, accountID, window)
	if err != nil {
		return domain.UsageMetrics{}, err
	}
	now := t.Now().UTC()
	m := Aggregate(entries)
	m.AccountID = accountID
	m.Window = window
	m.WindowText = window.String()
	m.From = now.Add(-window)
	m.To = now
	return m, nil
}

// Aggregate calcula hit rate, error rate, latências e custo.
// Cache hit conta como sucesso; erro é qualquer outcome diferente de success.
func Aggregate(entries []domain.RequestLogEntry) domain.UsageMetrics {
	m := domain.UsageMetrics{
		ByEndpoint: map[string]domain.EndpointMetrics{},
		ByOutcome:  map[domain.Outcome]int{},
	}
	if len(entries) == 0 {
		return m
	}

	var hits, errs int
	var latSum int64
	lats := make([]int64, 0, len(entries))
	for _, e := range entries {
		m.Total++
		m.ByOutcome[e.Outcome]++
		m.CostUnits += e.CostUnits
		latSum += e.LatencyMs
		lats = append(lats, e.LatencyMs)

		em := m.ByEndpoint[e.Endpoint]
		em.Calls++
		em.CostUnits += e.CostUnits
		if e.CacheHit {
			hits++
			em.CacheHits++
		}
		if e.Outcome != domain.OutcomeSuccess {
			errs++
			em.Errors++
		}
		m.ByEndpoint[e.Endpoint] = em
	}

	n := float64(m.Total)
	m.CacheHitRate = float64(hits) / n
	m.ErrorRate = float64(errs) / n
	m.AvgLatencyMs = float64(latSum) / n

	sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
	m.P50LatencyMs = percentile(lats, 50)
	m.P95LatencyMs = percentile(lats, 95)
	return m
}

// percentile pelo método nearest-rank; sorted já ordenado.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
