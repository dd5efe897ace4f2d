package domain

import (
	"errors"
	"fmt"
	"time"
)

// Erros do store. Adapters de infra devem embrulhar falhas de rede em
// ErrStoreUnavailable e chave ausente em ErrKeyNotFound.
var (
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrKeyNotFound      = errors.New("key not found")
)

// ErrorKind classifica as falhas do gateway.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindRateLimited
	KindQuotaExceeded
	KindNotFound
	KindValidation
	KindNetwork
	KindTimeout
	KindSchema
	KindProvider
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindSchema:
		return "schema"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Error é o erro tipado devolvido aos chamadores do gateway.
type Error struct {
	Kind    ErrorKind
	Message string
	// StatusCode do provedor, quando houver.
	StatusCode int
	// RetryAfter é a dica do provedor (ou da janela local) para RateLimited.
	RetryAfter time.Duration
	// Quota é preenchido para QuotaExceeded.
	Quota *QuotaStatus
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is compara pelo Kind, o que faz errors.Is(err, ErrRateLimited) funcionar
// para qualquer *Error do mesmo tipo.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinelas para errors.Is.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrRateLimited    = &Error{Kind: KindRateLimited}
	ErrQuotaExceeded  = &Error{Kind: KindQuotaExceeded}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrSchema         = &Error{Kind: KindSchema}
	ErrProvider       = &Error{Kind: KindProvider}
)

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewRateLimitError(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfter}
}

func NewQuotaExceededError(st QuotaStatus) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("account %s used %d of %d units", st.AccountID, st.Used, st.Limit),
		Quota:   &st,
	}
}

func NewTimeoutError(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "call deadline exceeded", Cause: cause}
}

// KindOf devolve KindUnknown para erros fora da taxonomia.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable: rate limit, 5xx, rede e timeout são transitórios.
// Autenticação, validação, not found, schema e quota não são.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindProvider, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterOf devolve a dica de retry-after de um erro RateLimited.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// OutcomeOf traduz um erro terminal para o Outcome do log de uso.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch KindOf(err) {
	case KindRateLimited:
		return OutcomeRateLimited
	case KindQuotaExceeded:
		return OutcomeQuotaExceeded
	case KindNotFound:
		return OutcomeNotFound
	case KindValidation:
		return OutcomeInvalidRequest
	case KindNetwork, KindTimeout:
		return OutcomeNetworkError
	default:
		return OutcomeProviderError
	}
}
