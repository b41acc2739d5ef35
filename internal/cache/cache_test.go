package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCache_SingleFlight(t *testing.T) {
	c := New[int](16, time.Minute)

	var computations atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "key", func(context.Context) (int, error) {
				computations.Add(1)
				<-release
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let all goroutines pile up on the same key before releasing
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), computations.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[int](16, 50*time.Millisecond)

	var computations atomic.Int32
	compute := func(context.Context) (int, error) {
		return int(computations.Add(1)), nil
	}

	v, err := c.GetOrCompute(context.Background(), "key", compute)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = c.GetOrCompute(context.Background(), "key", compute)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	time.Sleep(100 * time.Millisecond)

	v, err = c.GetOrCompute(context.Background(), "key", compute)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[string](2, time.Minute)

	var computations atomic.Int32
	get := func(key string) string {
		v, err := c.GetOrCompute(context.Background(), key, func(context.Context) (string, error) {
			computations.Add(1)
			return "v-" + key, nil
		})
		require.NoError(t, err)
		return v
	}

	get("a")
	get("b")
	get("c") // evicts a
	require.Equal(t, int32(3), computations.Load())

	get("a") // recomputed after eviction
	require.Equal(t, int32(4), computations.Load())
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := New[int](16, time.Minute)

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}

	_, err := c.GetOrCompute(context.Background(), "key", compute)
	require.Error(t, err)

	v, err := c.GetOrCompute(context.Background(), "key", compute)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int](16, time.Minute)

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, _ := c.GetOrCompute(context.Background(), "key", compute)
	require.Equal(t, 1, v)

	c.Invalidate("key")

	v, _ = c.GetOrCompute(context.Background(), "key", compute)
	require.Equal(t, 2, v)
}
