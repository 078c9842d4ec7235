package rebalancing

import "sync"

// strategyLocks serializes work on one strategy while letting different
// strategies proceed in parallel. Entries are dropped once unused.
type strategyLocks struct {
	mu    sync.Mutex
	locks map[int64]*strategyLock
}

type strategyLock struct {
	mu   sync.Mutex
	refs int
}

func newStrategyLocks() *strategyLocks {
	return &strategyLocks{locks: make(map[int64]*strategyLock)}
}

// Lock blocks until the strategy is free and returns the unlock func
func (l *strategyLocks) Lock(strategyID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[strategyID]
	if !ok {
		lock = &strategyLock{}
		l.locks[strategyID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, strategyID)
		}
		l.mu.Unlock()
	}
}

func (l *strategyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// LockStrategy holds the strategy's lock until the returned func is called.
// Satisfies strategies.StrategyLocker.
func (s *Service) LockStrategy(strategyID int64) func() {
	return s.locks.Lock(strategyID)
}
