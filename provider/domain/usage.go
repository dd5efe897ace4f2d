package domain

import "time"

// Outcome é o resultado terminal de uma invocação do pipeline.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeQuotaExceeded  Outcome = "quota_exceeded"
	OutcomeProviderError  Outcome = "provider_error"
	OutcomeNetworkError   Outcome = "network_error"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeInvalidRequest Outcome = "invalid_request"
)

// RequestLogEntry é append-only: alimenta UsageMetrics e a conciliação de billing.
type RequestLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	AccountID string    `json:"account_id"`
	Endpoint  string    `json:"endpoint"`
	Priority  string    `json:"priority"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	Outcome   Outcome   `json:"outcome"`
	CostUnits int64     `json:"cost_units"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EndpointMetrics agrega as chamadas de um endpoint.
type EndpointMetrics struct {
	Calls     int   `json:"calls"`
	CacheHits int   `json:"cache_hits"`
	Errors    int   `json:"errors"`
	CostUnits int64 `json:"cost_units"`
}

// UsageMetrics é calculado na leitura, nunca mantido incrementalmente.
type UsageMetrics struct {
	AccountID    string                     `json:"account_id"`
	Window       time.Duration              `json:"-"`
	WindowText   string                     `json:"window"`
	From         time.Time                  `json:"from"`
	To           time.Time                  `json:"to"`
	Total        int                        `json:"total"`
	ByEndpoint   map[string]EndpointMetrics `json:"by_endpoint"`
	ByOutcome    map[Outcome]int            `json:"by_outcome"`
	CacheHitRate float64                    `json:"cache_hit_rate"`
	ErrorRate    float64                    `json:"error_rate"`
	AvgLatencyMs float64                    `json:"avg_latency_ms"`
	P50LatencyMs int64                      `json:"p50_latency_ms"`
	P95LatencyMs int64                      `json:"p95_latency_ms"`
	CostUnits    int64                      `json:"cost_units"`
}

// UsageObserver recebe cada entrada gravada (ex: exportador Prometheus).
type UsageObserver interface {
	Observe(entry RequestLogEntry)
}
