package sqlite

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackFloat32RoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 3.333, 0, 1e10}
	blob := PackFloat32(v)

	require.Equal(t, len(v)*4, len(blob))

	got := UnpackFloat32(blob)
	require.Len(t, got, len(v))
	for i := range v {
		require.InDelta(t, v[i], got[i], 1e-3)
	}
}

func TestPackUnpackFloat32SelfCosineIsOne(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5, -0.1}
	blob := PackFloat32(v)
	got := UnpackFloat32(blob)

	require.Equal(t, len(got), len(blob)/4)

	var dot, normA, normB float64
	for i := range v {
		a, b := float64(v[i]), float64(got[i])
		dot += a * b
		normA += a * a
		normB += b * b
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	require.InDelta(t, 1.0, cos, 1e-6)
}
