package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLocker_ContextCancelWhileWaiting(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.Lock(context.Background(), "delivery:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "delivery:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // idempotent

	again, err := locker.Lock(context.Background(), "delivery:1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	if len(locker.locks) != 0 {
		t.Fatalf("expected lock table to drain, have %d entries", len(locker.locks))
	}
}

func TestMemoryLocker_OppositeOrderNoDeadlock(t *testing.T) {
	locker := NewMemoryLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		keys := []string{"sme:a", "wallet:a"}
		if i == 1 {
			keys = []string{"wallet:a", "sme:a", "wallet:a"}
		}
		go func(keys []string) {
			for j := 0; j < 200; j++ {
				unlock, err := locker.Lock(ctx, keys...)
				if err != nil {
					done <- err
					return
				}
				unlock()
			}
			done <- nil
		}(keys)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("locker deadlocked or failed: %v", err)
		}
	}
}

func TestOrderKeys(t *testing.T) {
	got := orderKeys([]string{"wallet:b", "delivery:a", "wallet:b", "sme:c"})
	want := []string{"delivery:a", "sme:c", "wallet:b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}
