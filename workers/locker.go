package workers

import (
	"context"
	"fmt"

	"competition-service/services"

	"github.com/go-co-op/gocron/v2"
)

// leaseLocker lets gocron run each job on one instance at a time, using the
// same lease table as the winner workflow.
type leaseLocker struct {
	leases *services.Leases
}

type leaseLock struct {
	leases *services.Leases
	name   string
	token  string
}

func (l leaseLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	name := "job:" + key
	token, ok, err := l.leases.TryAcquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %s is running on another instance", key)
	}
	return leaseLock{leases: l.leases, name: name, token: token}, nil
}

func (l leaseLock) Unlock(ctx context.Context) error {
	return l.leases.Release(context.WithoutCancel(ctx), l.name, l.token)
}
