package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"provider-gateway/provider/domain"
)

type rejectCounter struct {
	mu sync.Mutex
	n  map[domain.SlotRejectReason]int
}

func (c *rejectCounter) SlotRejected(r domain.SlotRejectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[domain.SlotRejectReason]int{}
	}
	c.n[r]++
}

func (c *rejectCounter) count(r domain.SlotRejectReason) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[r]
}

func TestConcurrencyMiddleware_TimesOutWhenNoSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	secondDone := make(chan struct{})
	var startedOnce sync.Once

	// handler que segura a vaga até liberarmos.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w1 := httptest.NewRecorder()
		h.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "http://example/v1/properties/P1", nil))
		if w1.Code != http.StatusOK {
			t.Errorf("expected first request 200, got %d", w1.Code)
		}
	}()

	select {
	case <-started:
	case <-time.After(200 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	go func() {
		defer wg.Done()
		defer close(secondDone)
		w2 := httptest.NewRecorder()
		h.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "http://example/v1/properties/P2", nil))
		if w2.Code != http.StatusServiceUnavailable {
			t.Errorf("expected second request 503, got %d", w2.Code)
		}
		if w2.Header().Get("Retry-After") != "1" {
			t.Errorf("expected Retry-After 1, got %q", w2.Header().Get("Retry-After"))
		}
	}()

	select {
	case <-secondDone:
	case <-time.After(500 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting second request to finish")
	}

	close(release)
	wg.Wait()
}

func TestConcurrencyMiddleware_CustomRejectStatus(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 1, RejectStatus: http.StatusTooManyRequests, AcquireTimeout: 5 * time.Millisecond})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-block
		}),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	close(block)
	<-done
}

func TestConcurrencyMiddleware_DisabledPassesThrough(t *testing.T) {
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 0})(next)

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if called != 3 {
		t.Fatalf("expected 3 calls, got %d", called)
	}
}

func TestConcurrencyMiddleware_CanceledCallerGetsNoBody(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	obs := &rejectCounter{}
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 1, AcquireTimeout: time.Minute, RetryAfter: 3 * time.Second, Observer: obs})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-block
		}),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	if rec.Body.Len() != 0 || rec.Header().Get("Retry-After") != "" {
		t.Fatalf("expected nothing written for canceled caller, got %d %q", rec.Code, rec.Body.String())
	}
	if obs.count(domain.SlotCanceled) != 1 || obs.count(domain.SlotTimeout) != 0 {
		t.Fatalf("expected one canceled rejection, got %+v", obs.n)
	}
	close(block)
	<-done
}

func TestConcurrencyMiddleware_TimeoutCountsAndSetsRetryAfter(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	obs := &rejectCounter{}
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 1, AcquireTimeout: 5 * time.Millisecond, RetryAfter: 2500 * time.Millisecond, Observer: obs})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-block
		}),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Fatalf("expected Retry-After rounded up to 3, got %q", got)
	}
	if obs.count(domain.SlotTimeout) != 1 {
		t.Fatalf("expected one timeout rejection, got %+v", obs.n)
	}
	close(block)
	<-done
}
