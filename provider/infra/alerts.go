package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"provider-gateway/provider/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlertQueueFull é devolvido quando o dispatcher não tem espaço; o evento é descartado.
	ErrAlertQueueFull = errors.New("alert queue full")
	// ErrDispatcherClosed é devolvido por Publish depois de Close.
	ErrDispatcherClosed = errors.New("alert dispatcher closed")
)

// LogAlertSink só loga o evento. Bom como sink padrão em desenvolvimento.
type LogAlertSink struct {
	Log logrus.FieldLogger
}

func (s LogAlertSink) Publish(_ context.Context, ev domain.AlertEvent) error {
	if s.Log == nil {
		return nil
	}
	s.Log.WithFields(logrus.Fields{
		"account_id": ev.AccountID,
		"tier":       ev.Tier,
		"threshold":  ev.Threshold,
		"used":       ev.Used,
		"limit":      ev.Limit,
	}).Warn("quota threshold crossed")
	return nil
}

// RedisAlertSink publica o evento em JSON num canal pub/sub.
type RedisAlertSink struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisAlertSink(rdb redis.UniversalClient, channel string) *RedisAlertSink {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "pgw:quota-alerts"
	}
	return &RedisAlertSink{rdb: rdb, channel: channel}
}

func (s *RedisAlertSink) Publish(ctx context.Context, ev domain.AlertEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("%w: redis publish %s: %w", domain.ErrStoreUnavailable, s.channel, err)
	}
	return nil
}

// MultiAlertSink repassa para todos os sinks e junta os erros.
type MultiAlertSink []domain.AlertSink

func (m MultiAlertSink) Publish(ctx context.Context, ev domain.AlertEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncAlertDispatcher desacopla o hot path da quota dos sinks: Publish só
// enfileira, e um observer independente (goroutine) entrega ao sink.
//
// A fila é limitada; cheia, o evento é descartado e ErrAlertQueueFull volta.
type AsyncAlertDispatcher struct {
	sink    domain.AlertSink
	log     logrus.FieldLogger
	timeout time.Duration
	queue   chan domain.AlertEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type AlertDispatcherOption func(*AsyncAlertDispatcher)

func WithAlertLogger(l logrus.FieldLogger) AlertDispatcherOption {
	return func(d *AsyncAlertDispatcher) { d.log = l }
}

// WithDeliveryTimeout limita cada entrega ao sink.
func WithDeliveryTimeout(t time.Duration) AlertDispatcherOption {
	return func(d *AsyncAlertDispatcher) { d.timeout = t }
}

func NewAsyncAlertDispatcher(sink domain.AlertSink, buffer int, opts ...AlertDispatcherOption) *AsyncAlertDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &AsyncAlertDispatcher{
		sink:    sink,
		timeout: 5 * time.Second,
		queue:   make(chan domain.AlertEvent, buffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}
	go d.loop()
	return d
}

func (d *AsyncAlertDispatcher) Publish(_ context.Context, ev domain.AlertEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.WithField("account_id", ev.AccountID).WithField("threshold", ev.Threshold).Warn("alert dispatcher closed, dropping event")
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		d.log.WithField("account_id", ev.AccountID).WithField("threshold", ev.Threshold).Warn("alert queue full, dropping event")
		return ErrAlertQueueFull
	}
}

func (d *AsyncAlertDispatcher) loop() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Publish(ctx, ev); err != nil {
			d.log.WithError(err).WithField("account_id", ev.AccountID).Warn("alert delivery failed")
		}
		cancel()
	}
}

// Close para de aceitar eventos e espera a fila esvaziar (ou ctx encerrar).
// Publish depois de Close devolve ErrDispatcherClosed.
func (d *AsyncAlertDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
