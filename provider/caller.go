package provider

import (
	"net/http"
	"strings"

	"provider-gateway/provider/domain"
)

// Caller identifica quem está chamando o gateway.
type Caller struct {
	AccountID string
	Tier      domain.QuotaTier
	Priority  domain.Priority
}

// CallerFunc extrai o Caller da requisição.
type CallerFunc func(r *http.Request) (Caller, error)

// Headers lidos por DefaultCallerFunc.
const (
	HeaderAccountID = "X-Account-ID"
	HeaderTier      = "X-Account-Tier"
	HeaderPriority  = "X-Priority"
)

// DefaultCallerFunc lê conta, plano e prioridade dos headers. Conta ausente é
// erro de validação; plano e prioridade ausentes viram standard.
//
// Os headers não são autenticados aqui: X-Account-Tier decide a quota e
// X-Priority o pool de rate limit, então só o CRM (ou o proxy confiável na
// frente do gateway) pode defini-los. Tráfego de usuário final precisa ter
// esses headers removidos antes de chegar aqui.
func DefaultCallerFunc() CallerFunc {
	return func(r *http.Request) (Caller, error) {
		acct := strings.TrimSpace(r.Header.Get(HeaderAccountID))
		if acct == "" {
			return Caller{}, domain.NewValidationError("missing " + HeaderAccountID + " header")
		}
		if err := domain.ValidateID("account id", acct); err != nil {
			return Caller{}, err
		}
		tier, err := domain.ParseTier(r.Header.Get(HeaderTier))
		if err != nil {
			return Caller{}, err
		}
		prio, err := domain.ParsePriority(r.Header.Get(HeaderPriority))
		if err != nil {
			return Caller{}, err
		}
		return Caller{AccountID: acct, Tier: tier, Priority: prio}, nil
	}
}
