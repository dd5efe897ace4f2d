package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"provider-gateway/provider/domain"
)

// SlotPool é um semáforo sobre channel. A capacidade é fixa na criação.
type SlotPool struct {
	sem chan struct{}
	now func() time.Time
}

var _ domain.SlotPool = (*SlotPool)(nil)

// NewSlotPool cria um pool com size vagas (mínimo 1).
func NewSlotPool(size int) *SlotPool {
	return &SlotPool{sem: make(chan struct{}, max(size, 1)), now: time.Now}
}

func (p *SlotPool) Acquire(ctx context.Context) (func(), error) {
	// vaga livre ganha mesmo com ctx já encerrado
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), nil
	default:
	}

	started := p.now()
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), nil
	case <-ctx.Done():
		reason := domain.SlotCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = domain.SlotTimeout
		}
		return nil, &domain.SlotRejection{Reason: reason, Waited: p.now().Sub(started), InFlight: p.InFlight()}
	}
}

func (p *SlotPool) releaser() func() {
	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }
}

func (p *SlotPool) InFlight() int { return len(p.sem) }

func (p *SlotPool) Cap() int { return cap(p.sem) }
