package services

import (
	"context"
	"fmt"
	"time"

	"competition-service/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLeaseTTL  = 5 * time.Minute
	defaultLeasePoll = 250 * time.Millisecond
)

// Leases hands out named locks stored in the leases table, so every
// instance sharing the database sees the same holder. A lease that is not
// released expires after TTL.
type Leases struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Log   *logrus.Logger
	TTL   time.Duration
	Poll  time.Duration
}

func NewLeases(db *gorm.DB, clock clockwork.Clock, log *logrus.Logger, ttl time.Duration) *Leases {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Leases{DB: db, Clock: clock, Log: log, TTL: ttl, Poll: defaultLeasePoll}
}

// TryAcquire takes name when it is free or its lease has expired. It returns
// the holder token to release it with.
func (l *Leases) TryAcquire(ctx context.Context, name string) (string, bool, error) {
	now := l.Clock.Now()
	lease := models.Lease{
		Name:      name,
		Holder:    uuid.NewString(),
		ExpiresAt: now.Add(l.TTL).UnixMilli(),
	}
	res := l.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("leases.expires_at <= ?", now.UnixMilli()),
		}},
	}).Create(&lease)
	if res.Error != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", name, res.Error)
	}
	return lease.Holder, res.RowsAffected == 1, nil
}

// Acquire waits until name is free or ctx is done.
func (l *Leases) Acquire(ctx context.Context, name string) (func(), error) {
	for {
		token, ok, err := l.TryAcquire(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				if err := l.Release(context.WithoutCancel(ctx), name, token); err != nil {
					l.Log.WithError(err).WithField("lease", name).Warn("⚠️ failed to release lease, it will expire")
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}
}

// Release drops the lease if token still holds it.
func (l *Leases) Release(ctx context.Context, name, token string) error {
	return l.DB.WithContext(ctx).
		Where("name = ? AND holder = ?", name, token).
		Delete(&models.Lease{}).Error
}
