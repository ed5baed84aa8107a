package textutil

import (
	"math"

	"github.com/hbollon/go-edlib"
)

// Similarity scores two free-text fields in [0,1]. It takes the better of
// Jaro-Winkler over the normalized strings and token cosine similarity, so
// both small typos and reordered words score well.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	var jw float64
	if sim, err := edlib.StringsSimilarity(na, nb, edlib.JaroWinkler); err == nil {
		jw = float64(sim)
	}
	cos := CosineSimilarity(NewTermVector(na), NewTermVector(nb))
	return clamp01(math.Max(jw, cos))
}

// ArtistSimilarity compares artist credits, also trying the primary artist of
// each side so featured guests do not drag the score down.
func ArtistSimilarity(a, b string) float64 {
	full := Similarity(a, b)
	primary := Similarity(PrimaryArtist(a), PrimaryArtist(b))
	return math.Max(full, primary)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
