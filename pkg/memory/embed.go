// Package memory implements durable per-user long-term memory: salient
// facts with importance weights and embeddings, retrieved by a blended
// similarity/importance score.
package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// EmbeddingDim is the fixed vector width. All stored vectors and all query
// vectors share it; cosine similarity is undefined across widths.
const EmbeddingDim = 384

// Embed maps text to a deterministic unit vector. Tokens and their
// character trigrams are hashed into the vector (feature hashing), then the
// result is L2-normalized. The same text always produces the same vector,
// so similarity thresholds behave consistently across process restarts.
func Embed(text string) []float64 {
	vec := make([]float64, EmbeddingDim)

	for _, tok := range tokenize(text) {
		addFeature(vec, tok, 1.0)
		// Character trigrams give partial-overlap credit between related
		// tokens ("barcelona" vs "barcelonian").
		runes := []rune(tok)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// addFeature hashes a feature into a bucket with a sign bit, the standard
// collision-cancelling trick for hashed embeddings.
func addFeature(vec []float64, feature string, weight float64) {
	sum := sha256.Sum256([]byte(feature))
	bucket := binary.BigEndian.Uint32(sum[:4]) % EmbeddingDim
	sign := 1.0
	if sum[4]&1 == 1 {
		sign = -1.0
	}
	vec[bucket] += sign * weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// zero or the widths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
