package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dropwise/dispatch/internal/apperr"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStore_GetSetScan(t *testing.T) {
	_, client := setupRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	if _, err := s.Get(ctx, "delivery:x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	MustPut(t, s, "delivery:2", sample{ID: "2"})
	MustPut(t, s, "delivery:1", sample{ID: "1"})
	MustPut(t, s, "payment:1", sample{ID: "p"})

	got, err := GetJSON[sample](ctx, s, "delivery:1")
	if err != nil || got.ID != "1" {
		t.Fatalf("get delivery:1: %+v %v", got, err)
	}

	items, _, err := ScanJSON[sample](ctx, s, "delivery:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].ID != "2" {
		t.Fatalf("unexpected scan result %+v", items)
	}
}

func TestRedisStore_ScanEscapesGlob(t *testing.T) {
	_, client := setupRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()
	MustPut(t, s, "a*:1", sample{ID: "literal"})
	MustPut(t, s, "ab:1", sample{ID: "other"})

	items, _, err := ScanJSON[sample](ctx, s, "a*:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 1 || items[0].ID != "literal" {
		t.Fatalf("glob characters were not escaped: %+v", items)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewRedisStore(client)
	mr.Close()

	if err := s.Set(context.Background(), "wallet:a", []byte("{}")); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestRedisLocker_Exclusive(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 5*time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "delivery:1", "wallet:r")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive holders, saw %d", maxSeen)
	}
}

func TestRedisLocker_TimesOut(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "sme:a")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer unlock()

	if _, err := locker.Lock(ctx, "sme:a"); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected timeout as store unavailable, got %v", err)
	}
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client, time.Second, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "sme:a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// simulate expiry and takeover by another process
	mr.FastForward(2 * time.Second)
	if err := mr.Set(redisLockPrefix+"sme:a", "someone-else"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}
	unlock()

	got, err := mr.Get(redisLockPrefix + "sme:a")
	if err != nil || got != "someone-else" {
		t.Fatalf("foreign lock was released: %q %v", got, err)
	}
}
