package infra

import (
	"context"
	"strconv"

	"provider-gateway/provider/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromObserver exporta cada RequestLogEntry como métricas Prometheus.
// Os rótulos são de baixa cardinalidade: nada de account_id.
type PromObserver struct {
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	costUnits *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	slots     *prometheus.CounterVec
}

func NewPromObserver(namespace string, reg prometheus.Registerer) *PromObserver {
	o := &PromObserver{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Provider gateway invocations by endpoint, outcome and cache status.",
			},
			[]string{"endpoint", "outcome", "cache_hit", "priority"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Gateway call latency including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint", "cache_hit"},
		),
		costUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "cost_units_total",
				Help:      "Quota cost units consumed by successful provider calls.",
			},
			[]string{"endpoint"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "alerts_total",
				Help:      "Quota threshold alerts emitted.",
			},
			[]string{"tier", "threshold"},
		),
		slots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "slot_rejections_total",
				Help:      "Requests turned away by the concurrency limiter, by reason.",
			},
			[]string{"reason"},
		),
	}
	reg.MustRegister(o.calls, o.latency, o.costUnits, o.alerts, o.slots)
	return o
}

// Observe implementa domain.UsageObserver.
func (o *PromObserver) Observe(e domain.RequestLogEntry) {
	hit := strconv.FormatBool(e.CacheHit)
	o.calls.WithLabelValues(e.Endpoint, string(e.Outcome), hit, e.Priority).Inc()
	o.latency.WithLabelValues(e.Endpoint, hit).Observe(float64(e.LatencyMs) / 1000)
	if e.CostUnits > 0 {
		o.costUnits.WithLabelValues(e.Endpoint).Add(float64(e.CostUnits))
	}
}

// Publish implementa domain.AlertSink (só conta o alerta).
func (o *PromObserver) Publish(_ context.Context, ev domain.AlertEvent) error {
	o.alerts.WithLabelValues(ev.Tier, strconv.Itoa(ev.Threshold)).Inc()
	return nil
}

// SlotRejected implementa domain.SlotObserver.
func (o *PromObserver) SlotRejected(reason domain.SlotRejectReason) {
	o.slots.WithLabelValues(string(reason)).Inc()
}
