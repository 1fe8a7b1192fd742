package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// competitionLocks serialises winner commits and fulfillment runs per
// competition: a semaphore within this process, then a database lease
// across instances when leases is set.
type competitionLocks struct {
	mu     sync.Mutex
	sems   map[string]*semaphore.Weighted
	leases *Leases
}

func newCompetitionLocks(leases *Leases) *competitionLocks {
	return &competitionLocks{sems: make(map[string]*semaphore.Weighted), leases: leases}
}

// acquire blocks until the competition is free or ctx is done.
func (l *competitionLocks) acquire(ctx context.Context, competitionID string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[competitionID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[competitionID] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.leases == nil {
		return func() { sem.Release(1) }, nil
	}

	releaseLease, err := l.leases.Acquire(ctx, "competition:"+competitionID)
	if err != nil {
		sem.Release(1)
		return nil, err
	}
	return func() {
		releaseLease()
		sem.Release(1)
	}, nil
}
