package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "org:1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("locks map size = %d, want 0 after release", len(locker.locks))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()

	locker := NewKeyedMutex()
	unlockA, err := locker.Lock(context.Background(), "org:a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "org:b")
	if err != nil {
		t.Fatalf("Lock(b) error = %v, want independent key to be free", err)
	}
	unlockB()
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	t.Parallel()

	locker := NewKeyedMutex()
	unlock, err := locker.Lock(context.Background(), "org:1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "org:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() error = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "org:1")
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}

func newTestRedisClient(t *testing.T) *goredislib.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	locker, err := NewRedisLocker(newTestRedisClient(t), time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}

	unlock, err := locker.Lock(context.Background(), "org:1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "org:1"); err == nil {
		t.Fatal("second Lock() on held key expected error")
	}

	unlock()
	again, err := locker.Lock(context.Background(), "org:1")
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}

func TestEngineWithRedisLockerNoOverdraft(t *testing.T) {
	t.Parallel()

	locker, err := NewRedisLocker(newTestRedisClient(t), 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}
	store := NewMemoryStore()
	engine, err := NewEngine(store, locker, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	grant, err := engine.Grant(context.Background(), domain.OrganizationScope("org-1"), GrantRequest{
		SourceType: domain.SourceBundle,
		Amount:     3,
	})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	var (
		wg        sync.WaitGroup
		successes int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Consume(context.Background(), domain.OrganizationScope("org-1"), 1, "race", nil); err == nil {
				atomic.AddInt32(&successes, 1)
			} else if !errors.Is(err, domain.ErrInsufficientCredits) {
				t.Errorf("Consume() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("successes = %d, want 3", successes)
	}
	stored, _ := store.Grant(grant.ID)
	if stored.CreditsRemaining != 0 || !stored.IsBalanced() {
		t.Fatalf("grant remaining = %d balanced = %v, want 0 true", stored.CreditsRemaining, stored.IsBalanced())
	}
}

func TestNewLockerModes(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)

	testCases := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{mode: "redis", want: "*ledger.RedisLocker"},
		{mode: "local", want: "*ledger.KeyedMutex"},
		{mode: "none", want: "ledger.NoopLocker"},
		{mode: "zookeeper", wantErr: true},
	}

	for _, tc := range testCases {
		locker, err := NewLocker(tc.mode, client, zap.NewNop())
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NewLocker(%q) expected error", tc.mode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewLocker(%q) error = %v", tc.mode, err)
		}
		if got := fmt.Sprintf("%T", locker); got != tc.want {
			t.Fatalf("NewLocker(%q) type = %s, want %s", tc.mode, got, tc.want)
		}
	}
}
