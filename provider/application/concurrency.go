package application

import (
	"context"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
)

// ConcurrencyService aplica o prazo de espera por vaga, sem saber nada de HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Observer       domain.SlotObserver
	Log            logrus.FieldLogger
}

// Acquire tenta pegar uma vaga. Com AcquireTimeout <= 0 espera até o ctx
// encerrar. Erro não nulo é sempre *domain.SlotRejection.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}
	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Pool.Acquire(acqCtx)
	if err != nil {
		reason, _ := domain.RejectReason(err)
		if s.Observer != nil {
			s.Observer.SlotRejected(reason)
		}
		if s.Log != nil && reason == domain.SlotTimeout {
			s.Log.WithError(err).WithField("in_flight", s.Pool.InFlight()).Warn("no request slot available")
		}
		return nil, err
	}
	return release, nil
}
