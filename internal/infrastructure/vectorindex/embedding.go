package vectorindex

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Embed folds each token's digest into a fixed-size vector and
// normalizes the result. It is deterministic, which is what the index
// integrity guarantees actually depend on; a learned embedding model
// is explicitly out of scope and can replace this behind the same
// IndexWriter contract.
func Embed(text string, dims int) []float64 {
	if dims <= 0 {
		dims = DefaultDims
	}
	vector := make([]float64, dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		digest := sha256.Sum256([]byte(token))
		idx := int(binary.BigEndian.Uint16(digest[:2])) % dims
		sign := 1.0
		if digest[2]%2 != 0 {
			sign = -1.0
		}
		vector[idx] += sign
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector
}

// DefaultDims matches the pinned embedding model's dimensionality.
const DefaultDims = 384
