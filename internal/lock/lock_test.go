package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(ctx, "zalando")
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			require.NoError(t, lease.Release(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	a, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	b, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	held, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Double release is harmless.
	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))
	_, err = l.Acquire(context.Background(), "k")
	require.NoError(t, err)
}

type fakeRedis struct {
	mu      sync.Mutex
	held    map[string]string
	setErr  error
	evalErr error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{held: map[string]string{}} }

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.held[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.held[keys[0]] == args[0].(string) {
		delete(f.held, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedis_AcquireRelease(t *testing.T) {
	fr := newFakeRedis()
	l := NewRedis(fr, "rabatt:reconcile:", time.Minute)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "zalando")
	require.NoError(t, err)
	assert.Contains(t, fr.held, "rabatt:reconcile:zalando")

	require.NoError(t, lease.Release(ctx))
	assert.NotContains(t, fr.held, "rabatt:reconcile:zalando")
}

func TestRedis_WaitsForHolder(t *testing.T) {
	fr := newFakeRedis()
	l := NewRedis(fr, "", time.Minute)
	l.poll = time.Millisecond
	ctx := context.Background()

	first, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		second, err := l.Acquire(ctx, "k")
		assert.NoError(t, err)
		if second != nil {
			_ = second.Release(ctx)
		}
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, first.Release(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never succeeded")
	}
}

func TestRedis_AcquireTimeout(t *testing.T) {
	fr := newFakeRedis()
	fr.held["k"] = "someone-else"
	l := NewRedis(fr, "", time.Minute)
	l.poll = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_Errors(t *testing.T) {
	fr := newFakeRedis()
	fr.setErr = errors.New("redis: connection refused")
	_, err := NewRedis(fr, "", 0).Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock: acquire k")

	fr.setErr = nil
	lease, err := NewRedis(fr, "", 0).Acquire(context.Background(), "k")
	require.NoError(t, err)
	fr.evalErr = errors.New("redis: timeout")
	assert.Error(t, lease.Release(context.Background()))
}

func TestRedis_ReleaseAfterExpiry(t *testing.T) {
	fr := newFakeRedis()
	lease, err := NewRedis(fr, "", time.Minute).Acquire(context.Background(), "k")
	require.NoError(t, err)
	fr.held["k"] = "new-holder"
	require.NoError(t, lease.Release(context.Background()))
	assert.Equal(t, "new-holder", fr.held["k"])
}
