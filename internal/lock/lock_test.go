package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"distledger/internal/domain"
)

func TestNormalizeSortsAndDedupes(t *testing.T) {
	got := normalize([]string{"sale:g:2026-01-01", "product:b", "product:a", "product:b", ""})
	want := []string{"product:a", "product:b", "sale:g:2026-01-01"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLocalSerializesSameKey(t *testing.T) {
	locker := NewLocal()
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), ProductKey("p1"), SaleKey("g1", "2026-03-01"))
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("expected lock table to drain, got %d entries", len(locker.locks))
	}
}

func TestLocalHonorsContext(t *testing.T) {
	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "product:p1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "product:p0", "product:p1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on timeout, got %v", err)
	}

	// p0 must have been released when p1 failed.
	free, err := locker.Lock(context.Background(), "product:p0")
	if err != nil {
		t.Fatalf("lock p0: %v", err)
	}
	free()
}

func TestUnlockIsIdempotent(t *testing.T) {
	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
