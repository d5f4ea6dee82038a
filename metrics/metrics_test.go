package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/metrics"
)

func TestCollectorsAreRegisteredOnTheDedicatedRegistry(t *testing.T) {
	metrics.CacheHits.WithLabelValues("test-cache").Inc()
	metrics.EventsRecorded.WithLabelValues("like").Inc()
	metrics.TrainingFailures.Inc()

	families, err := metrics.Registry.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["audiio_cache_hits_total"])
	assert.True(t, names["audiio_training_failures_total"])
}
