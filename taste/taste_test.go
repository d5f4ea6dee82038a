package taste_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/taste"
	"audiio/vectormath"
)

func TestUpdatePositiveProducesUnitVector(t *testing.T) {
	p := taste.New(4, 2, 42)
	p.UpdatePositive([]float64{1, 0, 0, 0}, 1.0, "")
	p.UpdatePositive([]float64{0, 1, 0, 0}, 1.0, "")
	assert.InDelta(t, 1.0, vectormath.Norm(p.Vector()), 1e-6)
}

func TestIsValidRequiresMinimumInteractions(t *testing.T) {
	p := taste.New(4, 3, 1)
	assert.False(t, p.IsValid())
	p.UpdatePositive([]float64{1, 0, 0, 0}, 1.0, "")
	p.UpdatePositive([]float64{1, 0, 0, 0}, 1.0, "")
	assert.False(t, p.IsValid())
	p.UpdatePositive([]float64{1, 0, 0, 0}, 1.0, "")
	assert.True(t, p.IsValid())
}

func TestGetExplorationVectorIsApproximatelyOrthogonal(t *testing.T) {
	p := taste.New(8, 1, 7)
	p.UpdatePositive([]float64{1, 0, 0, 0, 0, 0, 0, 0}, 1.0, "")
	explore := p.GetExplorationVector()
	dot := vectormath.Dot(explore, p.Vector())
	assert.InDelta(t, 0, dot, 1e-6)
}

func TestGetContextualVectorFallsBackToGlobal(t *testing.T) {
	p := taste.New(4, 1, 3)
	p.UpdatePositive([]float64{0, 1, 0, 0}, 1.0, "")
	v := p.GetContextualVector(10, 2)
	assert.Equal(t, p.Vector(), v)
}
