package application

import (
	"context"
	"math/rand"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
)

// Sleeper espera d ou até o ctx encerrar.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext é o Sleeper padrão.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryController envolve a chamada de rede com retries classificados e
// backoff exponencial com jitter.
type RetryController struct {
	Sleep Sleeper
	// Rand devolve um float em [0,1). Só é usado com Jitter.
	Rand func() float64
	Log  logrus.FieldLogger
}

func (rc RetryController) withDefaults() RetryController {
	if rc.Sleep == nil {
		rc.Sleep = SleepContext
	}
	if rc.Rand == nil {
		rc.Rand = rand.Float64
	}
	if rc.Log == nil {
		rc.Log = discardLogger()
	}
	return rc
}

// Delay calcula a espera antes da tentativa attempt+1 (attempt começa em 1).
//
// min(MaxDelay, BaseDelay * 2^(attempt-1)), com jitter uniforme em [0, delay].
// Um RateLimited com dica de retry-after usa min(dica, MaxDelay), sem jitter.
func (rc RetryController) Delay(cfg domain.RetryConfig, attempt int, err error) time.Duration {
	rc = rc.withDefaults()

	if hint, ok := domain.RetryAfterOf(err); ok {
		if cfg.MaxDelay > 0 && hint > cfg.MaxDelay {
			return cfg.MaxDelay
		}
		return hint
	}

	d := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			break
		}
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter && d > 0 {
		d = time.Duration(rc.Rand() * float64(d))
	}
	return d
}

// Execute roda fn até dar certo, até um erro não retentável ou até
// MaxAttempts. O erro devolvido é o da última tentativa.
//
// Cada tentativa roda numa goroutine própria: se o ctx do chamador encerrar
// no meio dela, a tentativa é abandonada (o provedor pode até processá-la,
// mas nenhum retry novo sai) e um erro de timeout é devolvido.
func Execute[T any](ctx context.Context, rc RetryController, cfg domain.RetryConfig, fn func(ctx context.Context) (T, error)) (domain.RetryResult[T], error) {
	rc = rc.withDefaults()

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if !cfg.Idempotent {
		maxAttempts = 1
	}

	var res domain.RetryResult[T]
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, domain.NewTimeoutError(err)
		}
		res.Attempts = attempt

		v, err := runAttempt(ctx, fn)
		if err == nil {
			res.Value = v
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, domain.NewTimeoutError(ctxErr)
		}
		if !domain.IsRetryable(err) || attempt >= maxAttempts {
			return res, err
		}

		delay := rc.Delay(cfg, attempt, err)
		rc.Log.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"delay":        delay.String(),
		}).Debug("retrying provider call")

		if serr := rc.Sleep(ctx, delay); serr != nil {
			return res, domain.NewTimeoutError(serr)
		}
	}
}

func runAttempt[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
