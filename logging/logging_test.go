package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/logging"
)

func TestFromContextFallsBackToGlobalLogger(t *testing.T) {
	logger := logging.FromContext(context.Background())
	assert.NotNil(t, logger)
}

func TestWithComponentAttachesField(t *testing.T) {
	ctx, logger := logging.WithComponent(context.Background(), "scoring.hybrid")
	assert.Equal(t, logger, logging.FromContext(ctx))
}

func TestWithTrackIDChainsOntoComponent(t *testing.T) {
	ctx, _ := logging.WithComponent(context.Background(), "feature.aggregator")
	ctx, logger := logging.WithTrackID(ctx, "t1")
	assert.Equal(t, logger, logging.FromContext(ctx))
}
