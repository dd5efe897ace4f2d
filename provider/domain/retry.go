package domain

import "time"

// RetryConfig controla o retry controller.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	// Idempotent precisa ser true para haver mais de uma tentativa.
	Idempotent bool
}

// DefaultRetryConfig serve para os GETs do provedor (todos idempotentes).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
		Idempotent:  true,
	}
}

// RetryResult carrega o valor e quantas tentativas foram feitas.
type RetryResult[T any] struct {
	Value    T
	Attempts int
}
