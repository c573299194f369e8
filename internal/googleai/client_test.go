package googleai

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeL2(t *testing.T) {
	t.Run("normalizes to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		normalizeL2(v)

		assert.InDelta(t, 0.6, v[0], 1e-5)
		assert.InDelta(t, 0.8, v[1], 1e-5)
		assert.InDelta(t, 1, math.Sqrt(float64(v[0]*v[0]+v[1]*v[1])), 1e-5)
	})

	t.Run("zero vector is left unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}
		normalizeL2(v)

		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("rejects negative dimensions", func(t *testing.T) {
		_, err := NewClient(context.Background(), "key", WithDimensions(-1))
		require.ErrorIs(t, err, ErrInvalidDims)
	})

	t.Run("defaults model", func(t *testing.T) {
		client, err := NewClient(context.Background(), "key", WithModel(""))
		require.NoError(t, err)
		assert.Equal(t, defaultModel, client.EmbeddingModel())
	})

	t.Run("empty input is rejected before calling the API", func(t *testing.T) {
		client, err := NewClient(context.Background(), "key")
		require.NoError(t, err)

		_, err = client.CreateEmbedding(context.Background(), " ")
		require.ErrorIs(t, err, ErrEmptyInput)
	})
}
