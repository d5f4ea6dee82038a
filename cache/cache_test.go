package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/cache"
)

func TestTTLCacheExpiresAfterTTL(t *testing.T) {
	c := cache.NewTTLCache[string, int]("test", 10, 10*time.Millisecond)
	c.Set("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheEvictsOldestOnOverflow(t *testing.T) {
	c := cache.NewTTLCache[string, int]("test", 2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRURespectsCapacity(t *testing.T) {
	l := cache.NewLRU[string, int]("test", 2)
	l.Add("a", 1)
	l.Add("b", 2)
	l.Add("c", 3)
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Contains("a"))
}

func TestInflightDeduplicatesConcurrentCalls(t *testing.T) {
	var g cache.Inflight[string, int]

	results := make(chan int, 5)
	for i := 0; i < 5; i++ {
		go func() {
			v, err, _ := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
			require.NoError(t, err)
			results <- v
		}()
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, 42, <-results)
	}
}

func TestBatchLoaderToleratesIndividualFailures(t *testing.T) {
	b := cache.BatchLoader[string, int]{BatchSize: 2}
	results := b.LoadAll(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, k string) (int, error) {
		if k == "b" {
			return 0, assert.AnError
		}
		return len(k), nil
	})
	assert.Len(t, results, 2)
	_, ok := results["b"]
	assert.False(t, ok)
}
