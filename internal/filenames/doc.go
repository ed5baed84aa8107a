// Package filenames derives low-confidence match candidates from the
// structure of a file's path.
//
// An ordered list of templates is applied to the file stem and the first
// match wins. Templates that carry only a track number and title borrow the
// artist and album from the parent folders. Parsed text is checked against
// the catalog; entries found there keep the template's confidence, while
// unmatched text is still reported at the floor confidence.
package filenames
