package sqlite

import (
	"encoding/binary"
	"math"
)

// PackFloat32 packs a vector into a little-endian blob of 4*len(v) bytes,
// the on-disk representation of skill and perception embeddings.
// Long-term memory embeddings are stored as JSON text instead.
func PackFloat32(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// UnpackFloat32 reverses PackFloat32. len(result) == len(blob)/4.
func UnpackFloat32(blob []byte) []float32 {
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
