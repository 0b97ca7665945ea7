// Package embed turns text into fixed-length vectors.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDim matches the all-MiniLM-L6-v2 sentence embedding size.
const DefaultDim = 384

// Embedder maps text to a vector of Dim() elements.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dim() int
}

// Hash embeds text by feature hashing its lower-cased word and bigram
// tokens into a fixed number of buckets. Output is L2-normalized and fully
// deterministic, so it needs no model and no network.
type Hash struct {
	dim int
}

// NewHash creates a hashing embedder. A non-positive dim uses DefaultDim.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Hash{dim: dim}
}

func (h *Hash) Dim() int { return h.dim }

func (h *Hash) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *Hash) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	// The top bit picks the sign so collisions tend to cancel out.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float64) {
	var sq float64
	for _, x := range vec {
		sq += x * x
	}
	if sq == 0 {
		return
	}
	n := math.Sqrt(sq)
	for i := range vec {
		vec[i] /= n
	}
}
