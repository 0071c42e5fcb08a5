package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedDeterministic(t *testing.T) {
	a := Embed("prefers aisle seats on long flights")
	b := Embed("prefers aisle seats on long flights")
	assert.Equal(t, a, b)
}

func TestEmbedDimensionAndNorm(t *testing.T) {
	v := Embed("allergic to peanuts")
	require.Len(t, v, EmbeddingDim)

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	v := Embed("   ")
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestCosineIdentityAndRange(t *testing.T) {
	v := Embed("travels with two children")
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)

	other := Embed("completely unrelated quantum chromodynamics lecture")
	sim := Cosine(v, other)
	assert.LessOrEqual(t, sim, 1.0)
	assert.GreaterOrEqual(t, sim, -1.0)
}

func TestCosineRelatedTextScoresHigher(t *testing.T) {
	base := Embed("prefers vegetarian food when flying")
	related := Embed("vegetarian meals preferred on flights")
	unrelated := Embed("the database migration completed at midnight")

	assert.Greater(t, Cosine(base, related), Cosine(base, unrelated))
}

func TestCosineMismatchedWidths(t *testing.T) {
	assert.Zero(t, Cosine([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Zero(t, Cosine(nil, nil))
}
