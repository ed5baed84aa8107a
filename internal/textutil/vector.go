package textutil

import (
	"math"
	"strings"
)

// TermVector represents a term-frequency vector for text similarity comparison.
type TermVector struct {
	tokens map[string]float64
	norm   float64
}

// NewTermVector creates a term vector from the provided text.
// Returns nil if the text produces no valid tokens.
func NewTermVector(text string) *TermVector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &TermVector{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// Tokenize normalizes text and splits it into tokens, dropping single-character
// tokens such as articles and stray initials.
func Tokenize(text string) []string {
	raw := strings.Fields(Normalize(text))
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) < 2 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenCount returns the number of unique tokens in the vector.
func (v *TermVector) TokenCount() int {
	if v == nil {
		return 0
	}
	return len(v.tokens)
}

// CosineSimilarity computes the cosine similarity between two term vectors.
// Returns 0 if either vector is nil or has zero norm.
func CosineSimilarity(a, b *TermVector) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return math.Min(1, dot/(a.norm*b.norm))
}
