package infra

import (
	"context"
	"testing"
	"time"
)

func TestLocalBucketStore_BurstThenReject(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewLocalBucketStore(1, 2, WithBucketClock(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		if ok, _ := s.Take("k"); !ok {
			t.Fatalf("take %d: expected token", i+1)
		}
	}
	ok, wait := s.Take("k")
	if ok {
		t.Fatalf("expected third take to be rejected (burst=2)")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("expected wait in (0, 1s], got %v", wait)
	}

	// rejeição não consome token
	now = now.Add(time.Second)
	if ok, _ := s.Take("k"); !ok {
		t.Fatalf("expected token after refill")
	}
}

func TestLocalBucketStore_KeysAreIndependent(t *testing.T) {
	s := NewLocalBucketStore(0.01, 1)
	if ok, _ := s.Take("a"); !ok {
		t.Fatalf("expected first take on a")
	}
	if ok, _ := s.Take("b"); !ok {
		t.Fatalf("expected first take on b")
	}
	if ok, _ := s.Take("a"); ok {
		t.Fatalf("expected second take on a to be rejected")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", s.Len())
	}
}

func TestLocalBucketStore_CleanupRemovesIdleEntries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewLocalBucketStore(10, 1,
		WithIdleTTL(time.Minute),
		WithCleanupEvery(0),
		WithBucketClock(func() time.Time { return now }),
	)
	s.Take("old")
	now = now.Add(2 * time.Minute)
	s.Take("fresh")

	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected only the fresh bucket to survive, got %d", s.Len())
	}
}

func TestLocalBucketStore_JanitorStopsWithContext(t *testing.T) {
	s := NewLocalBucketStore(10, 1, WithIdleTTL(time.Nanosecond), WithCleanupEvery(time.Millisecond))
	s.Take("k")

	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not clean idle bucket")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
