// Package textutil provides text normalization and similarity scoring for
// matching tag and filename text against catalog entries.
//
// The primary use cases are:
//   - Folding titles and artist credits into a comparable form (diacritics,
//     case, punctuation)
//   - Building term-frequency vectors and comparing them with cosine similarity
//   - Combining Jaro-Winkler and token similarity into a single field score
//
// Tokenization normalizes text first, splits on whitespace, and drops
// single-character tokens.
package textutil
