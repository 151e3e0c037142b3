package model

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder is a deterministic feature-hashing embedding model.
// It splits on runes that are neither letters nor digits, hashes unigrams and bigrams into
// a fixed-dimension vector, and L2-normalizes the result. It stands in for
// a transformer encoder in deployments without model weights, and its
// determinism makes it the reference model for tests and benchmarks.
type HashingEmbedder struct {
	name string
	dim  int
}

// NewHashingEmbedder returns an embedder producing dim-length vectors.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashingEmbedder{name: "hashing-embedder-v1", dim: dim}
}

// Name implements EmbeddingModel.
func (h *HashingEmbedder) Name() string { return h.name }

// Device implements EmbeddingModel.
func (h *HashingEmbedder) Device() string { return "cpu" }

// Predict implements EmbeddingModel. Blocking, CPU-bound.
func (h *HashingEmbedder) Predict(inputs []string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, text := range inputs {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashingEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dim)
	tokens := tokenize(text)

	prev := ""
	for _, tok := range tokens {
		h.accumulate(vec, tok, 1.0)
		if prev != "" {
			h.accumulate(vec, prev+" "+tok, 0.5)
		}
		prev = tok
	}

	normalize(vec)
	return vec
}

// accumulate hashes the token into one dimension; bit 32 of the same hash
// picks the sign so collisions cancel rather than bias.
func (h *HashingEmbedder) accumulate(vec []float64, token string, weight float64) {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(token))
	sum := hash.Sum64()

	idx := int(sum % uint64(h.dim))
	sign := 1.0
	if (sum>>32)&1 == 1 {
		sign = -1.0
	}
	vec[idx] += sign * weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
