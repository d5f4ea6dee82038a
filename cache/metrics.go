package cache

import "audiio/metrics"

func recordHitMiss(name string, hit bool) {
	if hit {
		metrics.CacheHits.WithLabelValues(name).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(name).Inc()
	}
}
