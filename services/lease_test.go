package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-service/models"

	"github.com/jonboulle/clockwork"
)

func TestLeaseExclusiveUntilReleased(t *testing.T) {
	db := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testNow)
	a := newTestLeases(db, clock)
	b := newTestLeases(db, clock)
	ctx := context.Background()

	tokenA, ok, err := a.TryAcquire(ctx, "job:fulfillment-retry")
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = %v, %v", ok, err)
	}
	if _, ok, err := b.TryAcquire(ctx, "job:fulfillment-retry"); err != nil || ok {
		t.Fatalf("second holder acquired a held lease: %v, %v", ok, err)
	}
	if _, ok, _ := b.TryAcquire(ctx, "job:competition-closer"); !ok {
		t.Fatal("leases with different names must not conflict")
	}

	if err := a.Release(ctx, "job:fulfillment-retry", tokenA); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, _ := b.TryAcquire(ctx, "job:fulfillment-retry"); !ok {
		t.Fatal("lease not free after release")
	}
}

func TestLeaseExpires(t *testing.T) {
	db := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testNow)
	a := newTestLeases(db, clock)
	b := newTestLeases(db, clock)
	ctx := context.Background()

	tokenA, _, err := a.TryAcquire(ctx, "competition:c-1")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(a.TTL - time.Second)
	if _, ok, _ := b.TryAcquire(ctx, "competition:c-1"); ok {
		t.Fatal("lease taken before it expired")
	}

	clock.Advance(2 * time.Second)
	tokenB, ok, err := b.TryAcquire(ctx, "competition:c-1")
	if err != nil || !ok {
		t.Fatalf("expired lease not taken over: %v, %v", ok, err)
	}

	// A stale holder releasing late must not drop the new holder's lease.
	if err := a.Release(ctx, "competition:c-1", tokenA); err != nil {
		t.Fatal(err)
	}
	var lease models.Lease
	if err := db.First(&lease, "name = ?", "competition:c-1").Error; err != nil || lease.Holder != tokenB {
		t.Fatalf("lease = %+v, %v; want holder %s", lease, err, tokenB)
	}
}

func TestLeaseAcquireHonoursContext(t *testing.T) {
	db := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testNow)
	a := newTestLeases(db, clock)
	release, err := a.Acquire(context.Background(), "competition:c-2")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := newTestLeases(db, clock).Acquire(ctx, "competition:c-2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	release()
	again, err := newTestLeases(db, clock).Acquire(context.Background(), "competition:c-2")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}
