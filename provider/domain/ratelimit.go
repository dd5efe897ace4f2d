package domain

import "time"

// Pools de admissão usados pelo rate limiter.
const (
	PoolShared     = "shared"
	PoolReserved   = "reserved"
	PoolBackground = "background"
)

// RateLimitResult é a decisão de admissão calculada a cada chamada.
// Não é persistida além das janelas do próprio counter store.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// ResetAt em epoch seconds (lido do TTL restante da chave da janela).
	ResetAt  int64
	Limit    int
	Priority Priority

	// Pool indica qual janela admitiu (ou rejeitou) a chamada.
	Pool string
	// FailOpen é true quando a chamada foi admitida só porque o counter
	// store estava indisponível.
	FailOpen bool
}

// RetryAfter calcula quanto falta para a janela reiniciar a partir de now.
func (r RateLimitResult) RetryAfter(now time.Time) time.Duration {
	if r.ResetAt <= 0 {
		return 0
	}
	d := time.Unix(r.ResetAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RateLimitPolicy descreve as janelas por pool.
//
// Shared atende Standard e Background. Background ainda tem um teto próprio
// para que jobs em lote nunca consumam o pool inteiro. Interactive consome
// primeiro a janela reservada e, com BorrowShared, pode pegar do shared.
type RateLimitPolicy struct {
	Window          time.Duration
	SharedLimit     int
	BackgroundLimit int
	ReservedLimit   int
	BorrowShared    bool
}

// DefaultRateLimitPolicy retorna 60 req/min no pool shared.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		Window:          time.Minute,
		SharedLimit:     60,
		BackgroundLimit: 40,
		ReservedLimit:   20,
		BorrowShared:    true,
	}
}
