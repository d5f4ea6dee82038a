package vectorindex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/vectorindex"
)

func TestSearchByCosineRanksAndBreaksTiesByID(t *testing.T) {
	idx := vectorindex.New()
	idx.Add("b", []float64{1, 0})
	idx.Add("a", []float64{1, 0})
	idx.Add("c", []float64{0, 1})

	results := idx.SearchByCosine([]float64{1, 0}, 2, nil)
	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestSearchByCosineRespectsExclude(t *testing.T) {
	idx := vectorindex.New()
	idx.Add("a", []float64{1, 0})
	idx.Add("b", []float64{1, 0})

	results := idx.SearchByCosine([]float64{1, 0}, 5, map[string]struct{}{"a": {}})
	assert.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}
