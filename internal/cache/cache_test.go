package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompute_CachesValue(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	var calls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call should hit the cache")
}

func TestGetOrCompute_ConcurrentSingleflight(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	const waiters = 20
	results := make([]string, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one computation for concurrent callers")
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestGetOrCompute_ExpiredEntryRecomputed(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	var calls int32
	compute := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v, err := c.GetOrCompute(context.Background(), "k", 10*time.Millisecond, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	time.Sleep(20 * time.Millisecond)

	v, err = c.GetOrCompute(context.Background(), "k", 10*time.Millisecond, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "stale value must never be returned after ttl")
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	var calls int32
	compute := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("upstream broke")
		}
		return "recovered", nil
	}

	_, err := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	require.Error(t, err)

	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_ZeroTTLNeverStores(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	var calls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	_, err := c.GetOrCompute(context.Background(), "k", 0, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), "k", 0, compute)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestSweepEvictsExpired(t *testing.T) {
	c := New[string](10 * time.Millisecond)
	defer c.Close()

	_, err := c.GetOrCompute(context.Background(), "k", 5*time.Millisecond, func(ctx context.Context) (string, error) {
		return "v", nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClear(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrCompute(context.Background(), k, time.Minute, func(ctx context.Context) (string, error) {
			return k, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestDifferentKeysComputeIndependently(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	var calls int32
	for _, k := range []string{"a", "b"} {
		v, err := c.GetOrCompute(context.Background(), k, time.Minute, func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return k, nil
		})
		require.NoError(t, err)
		assert.Equal(t, k, v)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
