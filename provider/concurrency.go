package provider

import (
	"net/http"
	"strconv"
	"time"

	"provider-gateway/provider/application"
	"provider-gateway/provider/domain"
	"provider-gateway/provider/infra"

	"github.com/sirupsen/logrus"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter vai no header das respostas de sobrecarga (padrão 1s).
	RetryAfter time.Duration
	Observer   domain.SlotObserver
	Log        logrus.FieldLogger
}

// ConcurrencyMiddleware limita requisições simultâneas. Com Max <= 0 não faz nada.
//
// Só espera estourada vira resposta de sobrecarga. Chamador que desistiu
// enquanto esperava já não lê a resposta: nada é escrito.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	retryAfter := strconv.Itoa(int((opts.RetryAfter + time.Second - 1) / time.Second))

	svc := application.ConcurrencyService{
		Pool:           infra.NewSlotPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		Observer:       opts.Observer,
		Log:            opts.Log,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if reason, _ := domain.RejectReason(err); reason == domain.SlotCanceled {
					return
				}
				w.Header().Set("Retry-After", retryAfter)
				writeJSON(w, opts.RejectStatus, ErrorResponse{
					Error:     "overloaded",
					Message:   err.Error(),
					RequestID: requestID(r),
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
