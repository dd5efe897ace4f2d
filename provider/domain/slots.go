package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SlotPool limita as requisições simultâneas ao gateway.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Sem vaga
// devolve *SlotRejection. A função de release pode ser chamada mais de uma
// vez; só a primeira devolve a vaga.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	// InFlight é o número de vagas ocupadas agora.
	InFlight() int
	Cap() int
}

// SlotRejectReason diz por que uma vaga não foi concedida.
type SlotRejectReason string

const (
	// SlotTimeout: a espera estourou o prazo; o gateway está sobrecarregado.
	SlotTimeout SlotRejectReason = "timeout"
	// SlotCanceled: o chamador desistiu antes de ganhar a vaga.
	SlotCanceled SlotRejectReason = "canceled"
)

var ErrOverloaded = errors.New("gateway overloaded")

// SlotObserver é avisado de cada vaga negada.
type SlotObserver interface {
	SlotRejected(reason SlotRejectReason)
}

type SlotRejection struct {
	Reason   SlotRejectReason
	Waited   time.Duration
	InFlight int
}

func (e *SlotRejection) Error() string {
	return fmt.Sprintf("no slot (%s after %s, %d in flight)", e.Reason, e.Waited.Round(time.Millisecond), e.InFlight)
}

// Is casa ErrOverloaded só para timeout: cancelamento não é sobrecarga.
func (e *SlotRejection) Is(target error) bool {
	return target == ErrOverloaded && e.Reason == SlotTimeout
}

// RejectReason extrai o motivo de uma rejeição de vaga, se houver.
func RejectReason(err error) (SlotRejectReason, bool) {
	var rej *SlotRejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
