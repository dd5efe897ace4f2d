package application

import (
	"context"
	"strings"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCallTimeout vale para chamadores que não trazem deadline.
const DefaultCallTimeout = 15 * time.Second

// Gateway compõe cache, quota, rate limit, retry e telemetria em volta da
// chamada crua ao provedor.
//
// A ordem é fixa: cache antes de quota e admissão (hit não gasta nada),
// quota antes do rate limit (conta estourada falha rápido sem disputar a
// janela compartilhada).
type Gateway struct {
	Provider    domain.Provider
	Cache       ResponseCache
	Quota       QuotaManager
	Limiter     RateLimiter
	Retry       RetryController
	RetryConfig domain.RetryConfig
	Usage       UsageTracker

	CallTimeout time.Duration
	// RefundOnReject devolve a reserva de quota quando a admissão local
	// rejeita a chamada. Desligado: a reserva fica (contagem conservadora).
	RefundOnReject bool

	Tracer trace.Tracer
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func (g *Gateway) withDefaults() *Gateway {
	c := *g
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RetryConfig.MaxAttempts == 0 {
		c.RetryConfig = domain.DefaultRetryConfig()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("provider-gateway")
	}
	if c.Log == nil {
		c.Log = discardLogger()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &c
}

// ForAccount devolve um cliente com escopo de conta. Todas as chaves no
// store levam o accountID, então contas nunca compartilham quota nem cache.
func (g *Gateway) ForAccount(accountID string, tier domain.QuotaTier) *AccountClient {
	return &AccountClient{gw: g, accountID: accountID, tier: tier}
}

// AccountClient expõe as operações tipadas do gateway para uma conta.
type AccountClient struct {
	gw        *Gateway
	accountID string
	tier      domain.QuotaTier
}

type callOptions struct {
	priority domain.Priority
}

// CallOption ajusta uma chamada.
type CallOption func(*callOptions)

// WithPriority define a classe de prioridade (padrão Standard).
func WithPriority(p domain.Priority) CallOption {
	return func(o *callOptions) { o.priority = p }
}

func buildOptions(opts []CallOption) callOptions {
	o := callOptions{priority: domain.PriorityStandard}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (a *AccountClient) FetchProperty(ctx context.Context, id string, opts ...CallOption) (domain.PropertyDTO, error) {
	id = strings.TrimSpace(id)
	c := call{
		op:       domain.OpFetchProperty,
		params:   map[string]string{"id": id},
		options:  buildOptions(opts),
		validate: func() error { return domain.ValidateID("property id", id) },
	}
	return run(ctx, a, c, func(ctx context.Context) (domain.PropertyDTO, error) {
		return a.gw.Provider.FetchProperty(ctx, id)
	})
}

func (a *AccountClient) FetchValuation(ctx context.Context, propertyID string, opts ...CallOption) (domain.ValuationDTO, error) {
	propertyID = strings.TrimSpace(propertyID)
	c := call{
		op:       domain.OpFetchValuation,
		params:   map[string]string{"property_id": propertyID},
		options:  buildOptions(opts),
		validate: func() error { return domain.ValidateID("property id", propertyID) },
	}
	return run(ctx, a, c, func(ctx context.Context) (domain.ValuationDTO, error) {
		return a.gw.Provider.FetchValuation(ctx, propertyID)
	})
}

func (a *AccountClient) FetchMarketData(ctx context.Context, zip string, opts ...CallOption) (domain.MarketDataDTO, error) {
	zip = strings.TrimSpace(zip)
	c := call{
		op:       domain.OpFetchMarketData,
		params:   map[string]string{"zip": zip},
		options:  buildOptions(opts),
		validate: func() error { return domain.ValidateZip(zip) },
	}
	return run(ctx, a, c, func(ctx context.Context) (domain.MarketDataDTO, error) {
		return a.gw.Provider.FetchMarketData(ctx, zip)
	})
}

func (a *AccountClient) SearchListings(ctx context.Context, criteria domain.ListingCriteria, opts ...CallOption) ([]domain.ListingDTO, error) {
	criteria = criteria.Normalized()
	c := call{
		op:       domain.OpSearchListings,
		params:   criteria.Params(),
		options:  buildOptions(opts),
		validate: criteria.Validate,
	}
	return run(ctx, a, c, func(ctx context.Context) ([]domain.ListingDTO, error) {
		return a.gw.Provider.SearchListings(ctx, criteria)
	})
}

// UsageMetrics é a leitura do painel interno.
func (a *AccountClient) UsageMetrics(ctx context.Context, window time.Duration) (domain.UsageMetrics, error) {
	return a.gw.Usage.Metrics(ctx, a.accountID, window)
}

// QuotaStatus é a leitura do painel interno.
func (a *AccountClient) QuotaStatus(ctx context.Context) (domain.QuotaStatus, error) {
	return a.gw.Quota.Status(ctx, a.accountID, a.tier)
}

type call struct {
	op       domain.Operation
	params   map[string]string
	options  callOptions
	validate func() error
}

// run é a máquina de estados de uma chamada:
// Validate -> CacheCheck -> QuotaCheck -> RateLimitCheck -> Execute -> CacheStore -> Record.
// Todo estado terminal grava exatamente uma RequestLogEntry.
func run[T any](ctx context.Context, a *AccountClient, c call, fetch func(ctx context.Context) (T, error)) (T, error) {
	gw := a.gw.withDefaults()
	var zero T

	spec, _ := domain.SpecFor(c.op)
	prio := c.options.priority
	started := gw.Now()

	ctx, span := gw.Tracer.Start(ctx, "provider."+string(c.op), trace.WithAttributes(
		attribute.String("provider.account_id", a.accountID),
		attribute.String("provider.operation", string(c.op)),
		attribute.String("provider.priority", prio.String()),
	))
	defer span.End()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gw.CallTimeout)
		defer cancel()
	}

	log := gw.Log.WithFields(logrus.Fields{
		"account_id": a.accountID,
		"op":         string(c.op),
		"priority":   prio.String(),
	})

	// o registro sobrevive ao deadline do chamador
	recordCtx := context.WithoutCancel(ctx)
	record := func(outcome domain.Outcome, cacheHit bool, cost int64, attempts int, err error) {
		e := domain.RequestLogEntry{
			Timestamp: started,
			AccountID: a.accountID,
			Endpoint:  string(c.op),
			Priority:  prio.String(),
			CacheHit:  cacheHit,
			LatencyMs: gw.Now().Sub(started).Milliseconds(),
			Outcome:   outcome,
			CostUnits: cost,
			Attempts:  attempts,
		}
		if err != nil {
			e.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Bool("provider.cache_hit", cacheHit),
			attribute.String("provider.outcome", string(outcome)),
		)
		gw.Usage.Record(recordCtx, e)
	}
	fail := func(err error, attempts int) (T, error) {
		record(domain.OutcomeOf(err), false, 0, attempts, err)
		return zero, err
	}

	if err := domain.ValidateID("account id", a.accountID); err != nil {
		return fail(err, 0)
	}
	if !prio.Valid() {
		return fail(domain.NewValidationError("invalid priority"), 0)
	}
	if err := c.validate(); err != nil {
		return fail(err, 0)
	}

	if ent, ok := gw.Cache.Get(ctx, a.accountID, c.op, c.params); ok {
		v, err := Decode[T](ent)
		if err == nil {
			record(domain.OutcomeSuccess, true, 0, 0, nil)
			return v, nil
		}
		log.WithError(err).Warn("cached value undecodable, refetching")
	}

	quota, err := gw.Quota.CheckAndReserve(ctx, a.accountID, a.tier, spec.CostUnits)
	if err != nil {
		return fail(err, 0)
	}

	adm := gw.Limiter.Admit(ctx, a.accountID, prio)
	span.SetAttributes(
		attribute.Bool("provider.admitted", adm.Allowed),
		attribute.String("provider.pool", adm.Pool),
	)
	if !adm.Allowed {
		if gw.RefundOnReject {
			if err := gw.Quota.Release(recordCtx, a.accountID, quota.PeriodStart, spec.CostUnits); err != nil {
				log.WithError(err).Warn("quota refund failed")
			}
		}
		return fail(domain.NewRateLimitError("local admission rejected ("+adm.Pool+" pool)", adm.RetryAfter(gw.Now())), 0)
	}

	res, err := Execute(ctx, gw.Retry, gw.RetryConfig, fetch)
	if err != nil {
		// chamada não cobrada: a reserva volta
		if rerr := gw.Quota.Release(recordCtx, a.accountID, quota.PeriodStart, spec.CostUnits); rerr != nil {
			log.WithError(rerr).Warn("quota release failed")
		}
		entry := log.WithError(err).WithField("attempts", res.Attempts)
		if domain.KindOf(err) == domain.KindSchema {
			entry.Error("provider response failed schema validation")
		} else {
			entry.Info("provider call failed")
		}
		return fail(err, res.Attempts)
	}

	if err := gw.Cache.Set(recordCtx, a.accountID, c.op, c.params, res.Value, spec.CacheType); err != nil {
		log.WithError(err).Warn("cache store failed")
	}
	if err := gw.Quota.Commit(recordCtx, a.accountID, a.tier, quota.PeriodStart, spec.CostUnits, spec.CostUnits); err != nil {
		log.WithError(err).Warn("quota commit failed")
	}
	record(domain.OutcomeSuccess, false, spec.CostUnits, res.Attempts, nil)
	return res.Value, nil
}
