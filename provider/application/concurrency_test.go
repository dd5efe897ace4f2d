package application

import (
	"context"
	"testing"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitingPool nunca tem vaga: espera o ctx e classifica como o pool real.
type waitingPool struct{}

func (waitingPool) Acquire(ctx context.Context) (func(), error) {
	<-ctx.Done()
	reason := domain.SlotCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = domain.SlotTimeout
	}
	return nil, &domain.SlotRejection{Reason: reason, InFlight: 4}
}

func (waitingPool) InFlight() int { return 4 }
func (waitingPool) Cap() int      { return 4 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(context.Context) (func(), error) {
	p.acquired++
	return func() {}, nil
}

func (p *immediatePool) InFlight() int { return 0 }
func (p *immediatePool) Cap() int      { return 1 }

type slotCounter map[domain.SlotRejectReason]int

func (c slotCounter) SlotRejected(r domain.SlotRejectReason) { c[r]++ }

func TestConcurrencyService_AllowsWhenNoPool(t *testing.T) {
	release, err := ConcurrencyService{}.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestConcurrencyService_TimeoutIsOverload(t *testing.T) {
	obs := slotCounter{}
	logger, hook := test.NewNullLogger()
	svc := ConcurrencyService{Pool: waitingPool{}, AcquireTimeout: 10 * time.Millisecond, Observer: obs, Log: logger}

	_, err := svc.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrOverloaded)
	assert.Equal(t, 1, obs[domain.SlotTimeout])
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "no request slot available", hook.LastEntry().Message)
	assert.Equal(t, 4, hook.LastEntry().Data["in_flight"])
}

func TestConcurrencyService_CallerCancelIsNotOverload(t *testing.T) {
	obs := slotCounter{}
	logger, hook := test.NewNullLogger()
	svc := ConcurrencyService{Pool: waitingPool{}, AcquireTimeout: time.Minute, Observer: obs, Log: logger}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Acquire(ctx)

	reason, ok := domain.RejectReason(err)
	require.True(t, ok)
	assert.Equal(t, domain.SlotCanceled, reason)
	assert.NotErrorIs(t, err, domain.ErrOverloaded)
	assert.Equal(t, 1, obs[domain.SlotCanceled])
	assert.Empty(t, hook.AllEntries())
}

func TestConcurrencyService_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool}

	_, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.acquired)
}
