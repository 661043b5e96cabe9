package skills

import (
	"math"
	"sort"
)

type rankedVector struct {
	name  string
	score float64
}

// rankByCosine scores every vector in candidates against query by
// cosine similarity and returns them sorted highest-first.
func rankByCosine(query []float32, candidates map[string][]float32) []rankedVector {
	out := make([]rankedVector, 0, len(candidates))
	for name, v := range candidates {
		out = append(out, rankedVector{name: name, score: cosine(query, v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
