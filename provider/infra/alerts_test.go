package infra

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"provider-gateway/provider/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu  sync.Mutex
	evs []domain.AlertEvent
	err error
}

func (s *memSink) Publish(_ context.Context, ev domain.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
	return s.err
}

func (s *memSink) events() []domain.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AlertEvent(nil), s.evs...)
}

// blockingSink segura a primeira entrega até release ser fechado.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Publish(ctx context.Context, _ domain.AlertEvent) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func alert(acct string, th int) domain.AlertEvent {
	return domain.AlertEvent{
		AccountID: acct,
		Tier:      "free",
		Threshold: th,
		Used:      int64(th),
		Limit:     100,
		At:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestAsyncAlertDispatcher_DeliversAndDrains(t *testing.T) {
	sink := &memSink{}
	d := NewAsyncAlertDispatcher(sink, 8, WithAlertLogger(quietLogger()))

	for _, th := range []int{80, 95, 100} {
		require.NoError(t, d.Publish(context.Background(), alert("acct-1", th)))
	}
	require.NoError(t, d.Close(context.Background()))

	got := sink.events()
	require.Len(t, got, 3)
	assert.Equal(t, 80, got[0].Threshold)
	assert.Equal(t, 100, got[2].Threshold)

	// idempotente
	assert.NoError(t, d.Close(context.Background()))
}

func TestAsyncAlertDispatcher_QueueFullDrops(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
	logger, hook := test.NewNullLogger()
	d := NewAsyncAlertDispatcher(sink, 1, WithAlertLogger(logger))

	require.NoError(t, d.Publish(context.Background(), alert("a", 80)))
	<-sink.started
	require.NoError(t, d.Publish(context.Background(), alert("a", 95)))

	err := d.Publish(context.Background(), alert("a", 100))
	assert.ErrorIs(t, err, ErrAlertQueueFull)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "alert queue full, dropping event", hook.LastEntry().Message)

	close(sink.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestAsyncAlertDispatcher_CloseHonorsContext(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
	d := NewAsyncAlertDispatcher(sink, 1, WithAlertLogger(quietLogger()), WithDeliveryTimeout(time.Minute))
	require.NoError(t, d.Publish(context.Background(), alert("a", 80)))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sink.release)
}

func TestAsyncAlertDispatcher_PublishAfterClose(t *testing.T) {
	sink := &memSink{}
	logger, hook := test.NewNullLogger()
	d := NewAsyncAlertDispatcher(sink, 4, WithAlertLogger(logger))
	require.NoError(t, d.Close(context.Background()))

	err := d.Publish(context.Background(), alert("a", 80))
	assert.ErrorIs(t, err, ErrDispatcherClosed)
	assert.Empty(t, sink.events())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "alert dispatcher closed, dropping event", hook.LastEntry().Message)
}

func TestAsyncAlertDispatcher_PublishRacingClose(t *testing.T) {
	d := NewAsyncAlertDispatcher(&memSink{}, 4, WithAlertLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := d.Publish(context.Background(), alert("a", 80))
				if err != nil && !errors.Is(err, ErrDispatcherClosed) && !errors.Is(err, ErrAlertQueueFull) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	require.NoError(t, d.Close(context.Background()))
	wg.Wait()
}

func TestAsyncAlertDispatcher_LogsFailedDelivery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewAsyncAlertDispatcher(&memSink{err: errors.New("boom")}, 4, WithAlertLogger(logger))
	require.NoError(t, d.Publish(context.Background(), alert("a", 80)))
	require.NoError(t, d.Close(context.Background()))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "alert delivery failed", hook.LastEntry().Message)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMultiAlertSink_FansOutAndJoinsErrors(t *testing.T) {
	ok := &memSink{}
	bad1 := &memSink{err: errors.New("first")}
	bad2 := &memSink{err: errors.New("second")}

	err := MultiAlertSink{ok, bad1, bad2}.Publish(context.Background(), alert("a", 80))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Len(t, ok.events(), 1)
	assert.Len(t, bad2.events(), 1)

	assert.NoError(t, MultiAlertSink{ok}.Publish(context.Background(), alert("a", 95)))
}

func TestLogAlertSink(t *testing.T) {
	logger, hook := test.NewNullLogger()
	require.NoError(t, LogAlertSink{Log: logger}.Publish(context.Background(), alert("acct-9", 95)))

	e := hook.LastEntry()
	require.NotNil(t, e)
	assert.Equal(t, "quota threshold crossed", e.Message)
	assert.Equal(t, "acct-9", e.Data["account_id"])
	assert.Equal(t, 95, e.Data["threshold"])

	assert.NoError(t, LogAlertSink{}.Publish(context.Background(), alert("a", 80)))
}

func TestRedisAlertSink_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "pgw:quota-alerts")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisAlertSink(rdb, "").Publish(ctx, alert("acct-1", 80)))

	select {
	case msg := <-sub.Channel():
		var ev domain.AlertEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "acct-1", ev.AccountID)
		assert.Equal(t, 80, ev.Threshold)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on channel")
	}
}

func TestRedisAlertSink_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	err := NewRedisAlertSink(rdb, "alerts").Publish(context.Background(), alert("a", 80))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaAlertSink_KeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaAlertSinkWithWriter(w, "quota-alerts")

	ev := alert("acct-7", 95)
	ev.Tier = "PRO"
	require.NoError(t, s.Publish(context.Background(), ev))
	require.NoError(t, s.Close())

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, []byte("acct-7"), m.Key)
	assert.Equal(t, ev.At, m.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "event", Value: []byte("quota.threshold")},
		{Key: "tier", Value: []byte("pro")},
	}, m.Headers)

	var got domain.AlertEvent
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, 95, got.Threshold)
	assert.True(t, w.closed)
}
