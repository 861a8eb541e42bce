package distlock

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another worker holds the tenant lease.
var ErrLeaseHeld = errors.New("tenant lease is held by another worker")

// TenantLease hands out per-tenant, per-job-kind locks. With Redis the
// lease expires after ttl, so a crashed worker cannot keep a tenant busy.
type TenantLease struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewTenantLease creates a lease factory. redisClient may be nil, in which
// case PostgreSQL advisory locks are used.
func NewTenantLease(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *TenantLease {
	return &TenantLease{redis: redisClient, db: db, ttl: ttl}
}

// Acquire takes the lease for (kind, tenantID). It returns ErrLeaseHeld
// when another owner has it. The caller must Release the returned lock.
func (t *TenantLease) Acquire(ctx context.Context, kind, tenantID string) (DistLock, error) {
	lock := NewLock(t.redis, t.db, "tenant:"+kind+":"+tenantID, t.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return lock, nil
}

// Hold keeps lock renewed at a third of the lease TTL while a job runs. The
// returned context is cancelled with cause ErrLeaseLost when a renewal finds
// the lease gone. stop ends the renewals and must be called before Release.
func (t *TenantLease) Hold(ctx context.Context, lock DistLock) (context.Context, func()) {
	return Hold(ctx, lock, t.ttl/3)
}

// Hold renews lock every interval until stop is called or ctx ends.
// Renewal errors other than ErrLeaseLost are logged and retried on the next
// tick; the lease survives them until its TTL runs out.
func Hold(ctx context.Context, lock DistLock, every time.Duration) (context.Context, func()) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	if every <= 0 {
		return jobCtx, func() { cancel(nil) }
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				err := lock.Renew(jobCtx)
				if errors.Is(err, ErrLeaseLost) {
					cancel(err)
					return
				}
				if err != nil {
					log.Printf("[distlock.Hold] renew failed, retrying: %v", err)
				}
			}
		}
	}()

	var once sync.Once
	return jobCtx, func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cancel(nil)
		})
	}
}
