// Package keylock provides bounded-wait mutual exclusion keyed by string.
// The settlement layer locks "acct:<id>" and "inst:<id>" keys so that two
// operations touching the same account or instrument never interleave,
// while operations on disjoint keys run in parallel.
package keylock

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// KeyLock hands out one binary semaphore per key. Acquisition waits at most
// the configured timeout and then fails with ErrConcurrentModification
// instead of hanging, per the no-indefinite-block contract.
type KeyLock struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	timeout time.Duration
}

// New creates a KeyLock with the given per-acquisition wait bound.
func New(timeout time.Duration) *KeyLock {
	return &KeyLock{
		sems:    make(map[string]*semaphore.Weighted),
		timeout: timeout,
	}
}

func (l *KeyLock) sem(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[key] = s
	}
	return s
}

// Acquire locks every key (deduplicated, in sorted order so two callers
// locking overlapping key sets cannot deadlock) and returns a release
// function. On timeout it releases anything already held and returns
// domain.ErrConcurrentModification.
func (l *KeyLock) Acquire(ctx context.Context, keys ...string) (func(), error) {
	uniq := dedupSorted(keys)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]*semaphore.Weighted, 0, len(uniq))
	release := func() {
		// Release in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	for _, k := range uniq {
		s := l.sem(k)
		if err := s.Acquire(ctx, 1); err != nil {
			release()
			return nil, domain.ErrConcurrentModification
		}
		held = append(held, s)
	}
	return release, nil
}

// AccountKey returns the lock key for an account's wallet and holdings.
func AccountKey(accountID int64) string {
	return "acct:" + strconv.FormatInt(accountID, 10)
}

// InstrumentKey returns the lock key for an instrument's price and float.
func InstrumentKey(instrumentID int64) string {
	return "inst:" + strconv.FormatInt(instrumentID, 10)
}

// FundKey returns the lock key for a hedge fund's treasury and portfolio.
func FundKey(fundID string) string {
	return "fund:" + fundID
}

func dedupSorted(keys []string) []string {
	sort.Strings(keys)
	out := keys[:0]
	var prev string
	for i, k := range keys {
		if i == 0 || k != prev {
			out = append(out, k)
		}
		prev = k
	}
	return out
}
