package infra

import (
	"context"
	"testing"

	"provider-gateway/provider/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromObserver_CountsEntries(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver("pgw", reg)

	o.Observe(domain.RequestLogEntry{Endpoint: "fetchProperty", Outcome: domain.OutcomeSuccess, Priority: "interactive", LatencyMs: 120, CostUnits: 1})
	o.Observe(domain.RequestLogEntry{Endpoint: "fetchProperty", Outcome: domain.OutcomeSuccess, Priority: "interactive", CacheHit: true, LatencyMs: 1})
	o.Observe(domain.RequestLogEntry{Endpoint: "fetchValuation", Outcome: domain.OutcomeQuotaExceeded, Priority: "background"})

	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("fetchProperty", string(domain.OutcomeSuccess), "false", "interactive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("fetchProperty", string(domain.OutcomeSuccess), "true", "interactive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("fetchValuation", string(domain.OutcomeQuotaExceeded), "false", "background")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.costUnits.WithLabelValues("fetchProperty")))
	assert.Equal(t, 3, testutil.CollectAndCount(o.latency))
}

func TestPromObserver_CountsAlerts(t *testing.T) {
	o := NewPromObserver("pgw", prometheus.NewRegistry())

	require.NoError(t, o.Publish(context.Background(), domain.AlertEvent{Tier: "free", Threshold: 80}))
	require.NoError(t, o.Publish(context.Background(), domain.AlertEvent{Tier: "free", Threshold: 80}))

	assert.Equal(t, 2.0, testutil.ToFloat64(o.alerts.WithLabelValues("free", "80")))
}

func TestPromObserver_CountsSlotRejections(t *testing.T) {
	o := NewPromObserver("pgw", prometheus.NewRegistry())

	o.SlotRejected(domain.SlotTimeout)
	o.SlotRejected(domain.SlotTimeout)
	o.SlotRejected(domain.SlotCanceled)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.slots.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.slots.WithLabelValues("canceled")))
}

func TestNewPromObserver_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromObserver("pgw", reg)
	assert.Panics(t, func() { NewPromObserver("pgw", reg) })
}
