package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
)

// periodGrace mantém a chave do período viva um pouco além do fim, para
// leituras de fechamento. O mês seguinte usa outra chave.
const periodGrace = time.Hour

// QuotaManager contabiliza o consumo da conta contra a franquia do plano.
//
// A reserva é otimista: incrementa primeiro e desfaz se passou do limite,
// então nenhuma chamada é tentada depois que o limite foi atingido e nenhum
// chamador concorrente observa used > limit.
type QuotaManager struct {
	Store  domain.CounterStore
	Tiers  map[domain.QuotaTier]domain.TierPolicy
	Alerts domain.AlertSink
	// FailClosed rejeita as chamadas quando o store está fora. O padrão é
	// falhar aberto, como o rate limiter.
	FailClosed bool
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func (m QuotaManager) withDefaults() QuotaManager {
	if m.Tiers == nil {
		m.Tiers = domain.DefaultTierPolicies()
	}
	if m.Log == nil {
		m.Log = discardLogger()
	}
	if m.Now == nil {
		m.Now = time.Now
	}
	return m
}

// Period devolve o período de billing (mês UTC) que contém t.
func Period(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

func quotaKey(accountID string, start time.Time) string {
	return fmt.Sprintf("quota:%s:%s", accountID, start.Format("200601"))
}

func alertKey(accountID string, start time.Time, threshold int) string {
	return fmt.Sprintf("quota:%s:%s:alert:%d", accountID, start.Format("200601"), threshold)
}

func (m QuotaManager) policy(tier domain.QuotaTier) (domain.TierPolicy, error) {
	pol, ok := m.Tiers[tier]
	if !ok || pol.Limit <= 0 {
		return domain.TierPolicy{}, domain.NewValidationError(fmt.Sprintf("no quota policy for tier %s", tier))
	}
	return pol, nil
}

func (m QuotaManager) status(accountID string, tier domain.QuotaTier, pol domain.TierPolicy, used int64, now time.Time) domain.QuotaStatus {
	start, end := Period(now)
	// reservas concorrentes podem passar do limite até o rollback
	used = min(max(used, 0), pol.Limit)
	pct := 0.0
	if pol.Limit > 0 {
		pct = float64(used) * 100 / float64(pol.Limit)
	}
	return domain.QuotaStatus{
		AccountID:   accountID,
		Tier:        tier,
		TierName:    tier.String(),
		PeriodStart: start,
		PeriodEnd:   end,
		Used:        used,
		Limit:       pol.Limit,
		PercentUsed: pct,
	}
}

// CheckAndReserve reserva units contra o período corrente.
func (m QuotaManager) CheckAndReserve(ctx context.Context, accountID string, tier domain.QuotaTier, units int64) (domain.QuotaStatus, error) {
	m = m.withDefaults()
	if units <= 0 {
		return domain.QuotaStatus{}, domain.NewValidationError("quota reservation must be positive")
	}
	pol, err := m.policy(tier)
	if err != nil {
		return domain.QuotaStatus{}, err
	}

	now := m.Now()
	start, end := Period(now)
	key := quotaKey(accountID, start)

	used, _, err := m.Store.IncrWithExpiry(ctx, key, units, end.Sub(now)+periodGrace)
	if err != nil {
		return m.storeDown(accountID, tier, pol, now, err)
	}

	if used > pol.Limit {
		if _, derr := m.Store.DecrBy(ctx, key, units); derr != nil {
			m.Log.WithError(derr).WithField("account_id", accountID).Error("quota rollback failed")
		}
		return domain.QuotaStatus{}, domain.NewQuotaExceededError(m.status(accountID, tier, pol, used-units, now))
	}

	st := m.status(accountID, tier, pol, used, now)
	m.fireThresholds(ctx, st, pol, used-units, end.Sub(now)+periodGrace)
	return st, nil
}

func (m QuotaManager) storeDown(accountID string, tier domain.QuotaTier, pol domain.TierPolicy, now time.Time, err error) (domain.QuotaStatus, error) {
	log := m.Log.WithError(err).WithField("account_id", accountID)
	if m.FailClosed {
		log.Error("quota store unavailable, rejecting call")
		return domain.QuotaStatus{}, &domain.Error{Kind: domain.KindNetwork, Message: "quota store unavailable", Cause: err}
	}
	log.Warn("quota store unavailable, failing open")
	return m.status(accountID, tier, pol, 0, now), nil
}

// Commit ajusta a reserva para o custo real da chamada bem-sucedida. period é
// o PeriodStart devolvido por CheckAndReserve.
func (m QuotaManager) Commit(ctx context.Context, accountID string, tier domain.QuotaTier, period time.Time, reserved, actual int64) error {
	m = m.withDefaults()
	delta := actual - reserved
	if delta == 0 {
		return nil
	}
	if delta < 0 {
		return m.Release(ctx, accountID, period, -delta)
	}
	pol, err := m.policy(tier)
	if err != nil {
		return err
	}
	now := m.Now()
	start, end := Period(period)
	ttl := max(end.Sub(now)+periodGrace, periodGrace)
	used, _, err := m.Store.IncrWithExpiry(ctx, quotaKey(accountID, start), delta, ttl)
	if err != nil {
		return err
	}
	// a chamada já aconteceu: acima do limite só dispara os alertas
	m.fireThresholds(ctx, m.status(accountID, tier, pol, used, start), pol, used-delta, ttl)
	return nil
}

// Release devolve uma reserva de uma chamada que não foi cobrada. A reserva
// volta para o período em que foi feita, mesmo que o mês já tenha virado.
func (m QuotaManager) Release(ctx context.Context, accountID string, period time.Time, units int64) error {
	m = m.withDefaults()
	if units <= 0 {
		return nil
	}
	start, end := Period(period)
	// chave já expirada renasce com TTL, nunca como negativo perpétuo
	ttl := max(end.Sub(m.Now())+periodGrace, periodGrace)
	_, _, err := m.Store.IncrWithExpiry(ctx, quotaKey(accountID, start), -units, ttl)
	return err
}

// Status lê o consumo do período sem alterá-lo.
func (m QuotaManager) Status(ctx context.Context, accountID string, tier domain.QuotaTier) (domain.QuotaStatus, error) {
	m = m.withDefaults()
	pol, err := m.policy(tier)
	if err != nil {
		return domain.QuotaStatus{}, err
	}
	now := m.Now()
	start, _ := Period(now)

	var used int64
	b, err := m.Store.Get(ctx, quotaKey(accountID, start))
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
	case err != nil:
		return domain.QuotaStatus{}, err
	default:
		used, err = strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return domain.QuotaStatus{}, fmt.Errorf("parse quota counter: %w", err)
		}
	}
	return m.status(accountID, tier, pol, used, now), nil
}

// fireThresholds emite um AlertEvent por limiar cruzado entre prev e st.Used.
// O SETNX na flag garante um único disparo por período entre todas as instâncias.
func (m QuotaManager) fireThresholds(ctx context.Context, st domain.QuotaStatus, pol domain.TierPolicy, prev int64, ttl time.Duration) {
	if m.Alerts == nil {
		return
	}
	for _, t := range pol.Thresholds {
		mark := int64(t) * pol.Limit
		if prev*100 >= mark || st.Used*100 < mark {
			continue
		}
		won, err := m.Store.SetNX(ctx, alertKey(st.AccountID, st.PeriodStart, t), []byte("1"), ttl)
		if err != nil {
			m.Log.WithError(err).WithField("threshold", t).Warn("quota alert flag unavailable")
			continue
		}
		if !won {
			continue
		}
		ev := domain.AlertEvent{
			AccountID:   st.AccountID,
			Tier:        st.TierName,
			Threshold:   t,
			Used:        st.Used,
			Limit:       st.Limit,
			PeriodStart: st.PeriodStart,
			At:          m.Now(),
		}
		if err := m.Alerts.Publish(ctx, ev); err != nil {
			m.Log.WithError(err).WithField("threshold", t).Warn("quota alert publish failed")
		}
	}
}
