package distlock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestTenantLease_ExclusivePerTenantAndKind(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	lease := NewTenantLease(client, nil, time.Minute)

	held, err := lease.Acquire(ctx, "dedup", "t1")
	require.NoError(t, err)

	_, err = lease.Acquire(ctx, "dedup", "t1")
	assert.ErrorIs(t, err, ErrLeaseHeld)

	other, err := lease.Acquire(ctx, "dedup", "t2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	importLease, err := lease.Acquire(ctx, "import", "t1")
	require.NoError(t, err)
	require.NoError(t, importLease.Release(ctx))

	require.NoError(t, held.Release(ctx))
	again, err := lease.Acquire(ctx, "dedup", "t1")
	require.NoError(t, err)
	assert.NoError(t, again.Release(ctx))
}

func TestTenantLease_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	lease := NewTenantLease(client, nil, 30*time.Second)

	_, err := lease.Acquire(ctx, "dedup", "t1")
	require.NoError(t, err)

	// A crashed worker never releases; the TTL frees the tenant.
	mr.FastForward(31 * time.Second)

	l, err := lease.Acquire(ctx, "dedup", "t1")
	require.NoError(t, err)
	assert.NoError(t, l.Release(ctx))
}

func TestRedisLock_ReleaseKeepsForeignOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	first := NewRedisLock(client, "k", 10*time.Second)
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)
	second := NewRedisLock(client, "k", 10*time.Second)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired owner must not delete the new owner's key.
	require.NoError(t, first.Release(ctx))
	assert.True(t, mr.Exists("lease:k"))
	assert.ErrorIs(t, first.Renew(ctx), ErrLeaseLost)

	mr.FastForward(4 * time.Second)
	assert.Equal(t, 6*time.Second, mr.TTL("lease:k"))
	require.NoError(t, second.Renew(ctx))
	assert.Equal(t, 10*time.Second, mr.TTL("lease:k"))
}

func TestPGAdvisoryLock_PinsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "tenant:dedup:t1")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(lock.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Contended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lease := NewTenantLease(nil, db, time.Minute)
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, err = lease.Acquire(context.Background(), "dedup", "t1")
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingLock struct {
	renewals atomic.Int32
	lostAt   int32
}

func (l *countingLock) Acquire(context.Context) (bool, error) { return true, nil }
func (l *countingLock) Release(context.Context) error         { return nil }

func (l *countingLock) Renew(context.Context) error {
	n := l.renewals.Add(1)
	switch {
	case l.lostAt > 0 && n >= l.lostAt:
		return ErrLeaseLost
	case n == 1:
		return errors.New("i/o timeout")
	}
	return nil
}

func TestHold_CancelsJobWhenLeaseLost(t *testing.T) {
	lock := &countingLock{lostAt: 3}
	ctx, stop := Hold(context.Background(), lock, 5*time.Millisecond)
	defer stop()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not cancelled")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrLeaseLost)
	assert.Equal(t, int32(3), lock.renewals.Load(), "a transient failure is retried")
}

func TestHold_StopEndsRenewals(t *testing.T) {
	lock := &countingLock{}
	ctx, stop := Hold(context.Background(), lock, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return lock.renewals.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()
	n := lock.renewals.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, lock.renewals.Load())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NotErrorIs(t, context.Cause(ctx), ErrLeaseLost, "stop is not a lease loss")
}

func TestTenantLease_HoldKeepsRedisLeaseAlive(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	lease := NewTenantLease(client, nil, 30*time.Millisecond)

	lock, err := lease.Acquire(ctx, "import", "t1")
	require.NoError(t, err)
	jobCtx, stop := lease.Hold(ctx, lock)

	// Losing the key to another owner cancels the running job.
	mr.Del("lease:tenant:import:t1")
	require.NoError(t, mr.Set("lease:tenant:import:t1", "someone-else"))
	select {
	case <-jobCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not cancelled")
	}
	assert.ErrorIs(t, context.Cause(jobCtx), ErrLeaseLost)
	stop()
	assert.NoError(t, lock.Release(ctx))
	assert.True(t, mr.Exists("lease:tenant:import:t1"), "release keeps the new owner's key")
}

func TestPGAdvisoryLock_RenewRequiresHeldSession(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "tenant:dedup:t1")
	assert.ErrorIs(t, lock.Renew(context.Background()), ErrLeaseLost)

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection reset"))

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, lock.Renew(context.Background()))
	assert.ErrorIs(t, lock.Renew(context.Background()), ErrLeaseLost)
}
