package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	originA = "http://a.example:80"
	originB = "https://b.example:443"
)

func TestOriginPool_AcquireRelease(t *testing.T) {
	pool := NewOriginPool(2, testLogger())

	require.NoError(t, pool.Acquire(context.Background(), originA))
	require.NoError(t, pool.Acquire(context.Background(), originA))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, pool.Acquire(ctx, originA), "third permit should block until timeout")

	pool.Release(originA)
	require.NoError(t, pool.Acquire(context.Background(), originA))

	pool.Release(originA)
	pool.Release(originA)
}

func TestOriginPool_OriginsIndependent(t *testing.T) {
	pool := NewOriginPool(1, testLogger())

	require.NoError(t, pool.Acquire(context.Background(), originA))
	require.NoError(t, pool.Acquire(context.Background(), originB))
	assert.Equal(t, 2, pool.Len())

	pool.Release(originA)
	pool.Release(originB)
}

func TestOriginPool_NonPositiveLimitDefaultsToOne(t *testing.T) {
	pool := NewOriginPool(0, testLogger())
	require.NoError(t, pool.Acquire(context.Background(), originA))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, pool.Acquire(ctx, originA))
	pool.Release(originA)
}

func TestOriginPool_EvictIdle(t *testing.T) {
	pool := NewOriginPool(1, testLogger())

	require.NoError(t, pool.Acquire(context.Background(), originA))
	pool.Release(originA)
	require.NoError(t, pool.Acquire(context.Background(), originB)) // still held

	time.Sleep(5 * time.Millisecond)
	pool.evictIdle(time.Millisecond)

	assert.Equal(t, 1, pool.Len(), "only the idle origin should be evicted")
	pool.Release(originB)
}

func TestOriginPool_RollbackOnCancel(t *testing.T) {
	pool := NewOriginPool(1, testLogger())
	require.NoError(t, pool.Acquire(context.Background(), originA))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, pool.Acquire(ctx, originA))

	pool.Release(originA)
	time.Sleep(2 * time.Millisecond)
	pool.evictIdle(time.Millisecond)
	assert.Equal(t, 0, pool.Len(), "cancelled waiter must not keep the entry active")
}

func TestOriginPool_RunEvictionStops(t *testing.T) {
	pool := NewOriginPool(1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pool.RunEviction(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEviction did not return after cancel")
	}
}

func TestOriginPool_ConcurrentLimit(t *testing.T) {
	pool := NewOriginPool(3, testLogger())
	var inFlight, peak atomic.Int32

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Acquire(context.Background(), originA); err != nil {
				t.Error(err)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			pool.Release(originA)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
}
