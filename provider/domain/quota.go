package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// QuotaTier é o plano de assinatura da conta junto ao provedor.
type QuotaTier int

const (
	TierFree QuotaTier = iota
	TierStandard
	TierPro
	TierEnterprise
)

func (t QuotaTier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierStandard:
		return "standard"
	case TierPro:
		return "pro"
	case TierEnterprise:
		return "enterprise"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func ParseTier(s string) (QuotaTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "", "standard":
		return TierStandard, nil
	case "pro":
		return TierPro, nil
	case "enterprise":
		return TierEnterprise, nil
	}
	return TierFree, NewValidationError(fmt.Sprintf("unknown quota tier %q", s))
}

// TierPolicy é a franquia periódica (em cost units) e os limiares de alerta
// de um plano. Thresholds em porcentagem, ordenados (ex: 80, 95, 100).
type TierPolicy struct {
	Limit      int64
	Thresholds []int
}

// DefaultTierPolicies retorna a franquia mensal padrão de cada plano.
func DefaultTierPolicies() map[QuotaTier]TierPolicy {
	th := []int{80, 95, 100}
	return map[QuotaTier]TierPolicy{
		TierFree:       {Limit: 100, Thresholds: th},
		TierStandard:   {Limit: 1000, Thresholds: th},
		TierPro:        {Limit: 10000, Thresholds: th},
		TierEnterprise: {Limit: 100000, Thresholds: th},
	}
}

// QuotaStatus é o consumo da conta no período corrente.
type QuotaStatus struct {
	AccountID   string    `json:"account_id"`
	Tier        QuotaTier `json:"-"`
	TierName    string    `json:"tier"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	PercentUsed float64   `json:"percent_used"`
}

// Remaining nunca é negativo.
func (s QuotaStatus) Remaining() int64 {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// AlertEvent é emitido uma única vez por período quando o consumo cruza um limiar.
type AlertEvent struct {
	AccountID   string    `json:"account_id"`
	Tier        string    `json:"tier"`
	Threshold   int       `json:"threshold"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	PeriodStart time.Time `json:"period_start"`
	At          time.Time `json:"at"`
}

// AlertSink consome eventos de limiar de quota.
//
// Implementações podem logar, publicar em Redis pub/sub, Kafka etc.
// O quota manager trata erro como best-effort (não derruba a chamada).
type AlertSink interface {
	Publish(ctx context.Context, ev AlertEvent) error
}
