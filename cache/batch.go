package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchLoader runs a key-fetch function over many keys in fixed-size
// concurrent batches, tolerating individual failures (§4.1 prefetch:
// "fetches in batches of <=10 in parallel, tolerating individual
// failures"). A key whose fetch fails is left out of the result map, so
// the returned map holds only the keys that were fetched successfully.
type BatchLoader[K comparable, V any] struct {
	BatchSize int
}

// LoadAll fetches fn(key) for every key in keys, batchSize at a time in
// parallel within each batch, sequential across batches.
func (b BatchLoader[K, V]) LoadAll(ctx context.Context, keys []K, fn func(context.Context, K) (V, error)) map[K]V {
	size := b.BatchSize
	if size <= 0 {
		size = 10
	}
	results := make(map[K]V, len(keys))
	var resultsMu sync.Mutex

	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, k := range batch {
			k := k
			g.Go(func() error {
				v, err := fn(gctx, k)
				if err != nil {
					// Individual failures are tolerated: the key is simply
					// omitted from results.
					return nil
				}
				resultsMu.Lock()
				results[k] = v
				resultsMu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}
