package keylock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
)

// TestAcquireRelease checks the basic lock/unlock cycle on one key.
func TestAcquireRelease(t *testing.T) {
	l := keylock.New(time.Second)

	release, err := l.Acquire(context.Background(), keylock.AccountKey(1))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	release()

	// Re-acquiring after release must succeed immediately.
	release, err = l.Acquire(context.Background(), keylock.AccountKey(1))
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	release()
}

// TestBoundedWaitTimeout verifies a contended key fails with
// ErrConcurrentModification instead of blocking indefinitely.
func TestBoundedWaitTimeout(t *testing.T) {
	l := keylock.New(50 * time.Millisecond)
	key := keylock.InstrumentKey(7)

	release, err := l.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("initial acquire failed: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = l.Acquire(context.Background(), key)
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("contended acquire err = %v, want ErrConcurrentModification", err)
	}
	if elapsed > time.Second {
		t.Errorf("bounded wait took %s, expected ~50ms", elapsed)
	}
}

// TestDisjointKeysRunInParallel confirms holders of different keys do not
// serialize each other.
func TestDisjointKeysRunInParallel(t *testing.T) {
	l := keylock.New(time.Second)

	releaseA, err := l.Acquire(context.Background(), keylock.AccountKey(1))
	if err != nil {
		t.Fatalf("acquire A: %v", err)
	}
	defer releaseA()

	// A different account's key must be free while A is held.
	releaseB, err := l.Acquire(context.Background(), keylock.AccountKey(2))
	if err != nil {
		t.Fatalf("acquire B while A held: %v", err)
	}
	releaseB()
}

// TestDuplicateKeysNoSelfDeadlock verifies Acquire dedups its key set: a
// caller passing the same key twice (e.g. self-referencing account and
// instrument) must not deadlock against itself.
func TestDuplicateKeysNoSelfDeadlock(t *testing.T) {
	l := keylock.New(time.Second)
	key := keylock.AccountKey(3)

	release, err := l.Acquire(context.Background(), key, key, key)
	if err != nil {
		t.Fatalf("duplicate-key acquire failed: %v", err)
	}
	release()
}

// TestOverlappingKeySetsNoDeadlock hammers two goroutines acquiring the same
// pair of keys in opposite order. Sorted acquisition means neither can hold
// one key while waiting forever on the other; run with -race.
func TestOverlappingKeySetsNoDeadlock(t *testing.T) {
	l := keylock.New(2 * time.Second)
	a := keylock.AccountKey(10)
	b := keylock.InstrumentKey(20)

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(2)

	worker := func(keys []string) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			release, err := l.Acquire(context.Background(), keys...)
			if err != nil {
				t.Errorf("acquire %v: %v", keys, err)
				return
			}
			release()
		}
	}

	go worker([]string{a, b})
	go worker([]string{b, a})
	wg.Wait()
}
