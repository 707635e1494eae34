package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into a fixed-dimension vector. Remote deployments
// plug in an embedding API; the default is a local hashing embedder so the
// retrieval core works without external services.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// hashEmbedDim is the dimension of the hashing embedder.
const hashEmbedDim = 256

// HashEmbedder is a deterministic bag-of-tokens embedder: each token is
// hashed into a bucket and the vector is L2-normalized. No semantics, but
// stable cosine behavior for overlap-based similarity.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

func (e *HashEmbedder) Dimension() int { return hashEmbedDim }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%hashEmbedDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
