package locker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker(Options{TTL: time.Second, Wait: 0})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "doctor:1:2025-03-10")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "doctor:1:2025-03-10"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, err := l.Acquire(ctx, "doctor:2:2025-03-10"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "doctor:1:2025-03-10"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLocalLocker_WaitsForRelease(t *testing.T) {
	l := NewLocalLocker(Options{TTL: time.Second, Wait: time.Second, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		release(ctx)
	}()
	if _, err := l.Acquire(ctx, "k"); err != nil {
		t.Fatalf("expected acquire after wait, got %v", err)
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	l := NewLocalLocker(Options{TTL: time.Minute})
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := l.Acquire(ctx, "k"); err != nil {
		t.Fatalf("expired lock should be reclaimable: %v", err)
	}
	if err := stale(ctx); err == nil {
		t.Error("releasing a taken-over lock should fail")
	}
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker(Options{TTL: time.Second, Wait: time.Second})
	if _, err := l.Acquire(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker(Options{TTL: time.Second, Wait: 2 * time.Second, PollInterval: time.Millisecond})
	ctx := context.Background()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "k")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release(ctx)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatal(err)
	}
}
