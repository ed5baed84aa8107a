// Package matching resolves the identity of one audio file.
//
// Engine tries three strategies in fixed precedence: acoustic fingerprint,
// embedded tags, then filename structure. The first strategy whose best
// candidate clears its confidence threshold decides the result; the
// filename strategy is accepted at any confidence and marks the result low
// confidence. Strategy failures are recorded on the result and never abort
// resolution. Only missing collaborators and context cancellation make
// Resolve return an error.
//
// Candidates of one strategy are ranked by confidence, then by how closely
// the candidate duration matches the decoded audio, then by recording id.
package matching
