package application

import (
	"context"
	"fmt"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
)

// RateLimiter faz o controle de admissão das chamadas de saída.
//
// Cada pool é uma janela por conta no counter store. O incremento de uma
// chamada rejeitada não é devolvido (contagem conservadora: evita um segundo
// round-trip ao custo de subestimar a capacidade em um por rejeitado).
type RateLimiter struct {
	Store  domain.CounterStore
	Policy domain.RateLimitPolicy
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func (l RateLimiter) withDefaults() RateLimiter {
	if l.Policy.Window <= 0 {
		l.Policy.Window = time.Minute
	}
	if l.Log == nil {
		l.Log = discardLogger()
	}
	if l.Now == nil {
		l.Now = time.Now
	}
	return l
}

// Admit decide se a chamada pode seguir agora.
//
// Se o counter store estiver inacessível o limiter falha ABERTO: admite e
// marca FailOpen, deixando quota e os 429 do provedor como proteção.
func (l RateLimiter) Admit(ctx context.Context, accountID string, p domain.Priority) domain.RateLimitResult {
	l = l.withDefaults()
	pol := l.Policy

	switch p {
	case domain.PriorityInteractive:
		if pol.ReservedLimit > 0 {
			res := l.hit(ctx, accountID, domain.PoolReserved, pol.ReservedLimit, p)
			if res.Allowed || !pol.BorrowShared {
				return res
			}
			shared := l.hit(ctx, accountID, domain.PoolShared, pol.SharedLimit, p)
			if !shared.Allowed && res.ResetAt > 0 && res.ResetAt < shared.ResetAt {
				// a janela que abre primeiro é a que interessa para Retry-After
				shared.ResetAt = res.ResetAt
			}
			return shared
		}
	case domain.PriorityBackground:
		if pol.BackgroundLimit > 0 {
			res := l.hit(ctx, accountID, domain.PoolBackground, pol.BackgroundLimit, p)
			if !res.Allowed || res.FailOpen {
				return res
			}
		}
	}
	return l.hit(ctx, accountID, domain.PoolShared, pol.SharedLimit, p)
}

func (l RateLimiter) hit(ctx context.Context, accountID, pool string, limit int, p domain.Priority) domain.RateLimitResult {
	now := l.Now()
	window := l.Policy.Window

	count, ttl, err := l.Store.IncrWithExpiry(ctx, rateLimitKey(accountID, pool), 1, window)
	if err != nil {
		l.Log.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"pool":       pool,
			"priority":   p.String(),
		}).Warn("rate limiter store unavailable, failing open")
		return domain.RateLimitResult{
			Allowed:   true,
			Remaining: limit,
			ResetAt:   ceilUnix(now.Add(window)),
			Limit:     limit,
			Priority:  p,
			Pool:      pool,
			FailOpen:  true,
		}
	}
	if ttl <= 0 {
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   ceilUnix(now.Add(ttl)),
		Limit:     limit,
		Priority:  p,
		Pool:      pool,
	}
}

func rateLimitKey(accountID, pool string) string {
	return fmt.Sprintf("ratelimit:%s:%s", accountID, pool)
}

// ceilUnix arredonda para cima: Retry-After nunca deve sair antes da janela.
func ceilUnix(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms + 999) / 1000
}
