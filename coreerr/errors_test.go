package coreerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/coreerr"
)

func TestNewUsesDefaultMessageWhenEmpty(t *testing.T) {
	err := coreerr.New(coreerr.KindStoreFailure, "", nil)
	assert.Equal(t, coreerr.DefaultMessages[coreerr.KindStoreFailure], err.Message)
}

func TestMissingDataSetsKind(t *testing.T) {
	err := coreerr.MissingData("track xyz")
	assert.Equal(t, coreerr.KindMissingData, err.Kind)
	assert.True(t, coreerr.IsKind(err, coreerr.KindMissingData))
	assert.False(t, coreerr.IsKind(err, coreerr.KindStoreFailure))
}

func TestIsKindMatchesThroughWrapping(t *testing.T) {
	base := coreerr.New(coreerr.KindProviderFailure, "provider X timed out", nil)
	wrapped := fmt.Errorf("scoring failed: %w", base)
	assert.True(t, coreerr.IsKind(wrapped, coreerr.KindProviderFailure))
}

func TestUnwrapFallsBackToSentinelWithoutCause(t *testing.T) {
	err := coreerr.New(coreerr.KindInvalidInput, "bad input", nil)
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
}

func TestUnwrapReturnsCauseWhenPresent(t *testing.T) {
	cause := errors.New("disk full")
	err := coreerr.New(coreerr.KindStoreFailure, "write failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestErrorStringIncludesKindAndMessage(t *testing.T) {
	err := coreerr.New(coreerr.KindTrainingFailure, "not enough samples", nil)
	assert.Contains(t, err.Error(), string(coreerr.KindTrainingFailure))
	assert.Contains(t, err.Error(), "not enough samples")
}
