package matching

import (
	"math"
	"sort"
)

// SortCandidates orders candidates best first for a file whose decoded
// duration is duration (zero when unknown).
func SortCandidates(candidates []Candidate, duration float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j], duration)
	})
}

// Best returns the top-ranked candidate.
func Best(candidates []Candidate, duration float64) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best, duration) {
			best = c
		}
	}
	return best, true
}

func better(a, b Candidate, duration float64) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	da, db := durationGap(a, duration), durationGap(b, duration)
	if da != db {
		return da < db
	}
	return a.RecordingID < b.RecordingID
}

// durationGap is +Inf when either duration is unknown so such candidates
// sort after every candidate with a known gap.
func durationGap(c Candidate, duration float64) float64 {
	if duration <= 0 || c.DurationSeconds <= 0 {
		return math.Inf(1)
	}
	return math.Abs(c.DurationSeconds - duration)
}
