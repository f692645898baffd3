// Package face implements embedding comparison for face-based login.
package face

import (
	"errors"
	"math"
)

// DefaultThreshold is the maximum Euclidean distance accepted as a match.
const DefaultThreshold = 0.53

// sentinelDistance bounds the best-match search; candidates at or above
// this distance are never selected.
const sentinelDistance = 1.0

var (
	// ErrDimensionMismatch occurs when two embeddings differ in length.
	ErrDimensionMismatch = errors.New("face: embedding dimension mismatch")
	// ErrEmptyEmbedding occurs when an embedding has no components.
	ErrEmptyEmbedding = errors.New("face: empty embedding")
)

// Distance returns the Euclidean distance between two embeddings.
func Distance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyEmbedding
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Candidate pairs a stored embedding with its owning record.
type Candidate struct {
	ID        string
	Email     string
	Embedding []float64
}

// Result describes the outcome of a best-match scan.
type Result struct {
	ID       string
	Email    string
	Distance float64
	Matched  bool
}

// Matcher accepts embeddings whose distance is strictly below Threshold.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher with the default threshold.
func NewMatcher() Matcher {
	return Matcher{Threshold: DefaultThreshold}
}

// Match reports whether a distance is accepted.
func (m Matcher) Match(dist float64) bool {
	return dist < m.Threshold
}

// Verify compares a probe against a single stored embedding.
func (m Matcher) Verify(probe, stored []float64) (Result, error) {
	dist, err := Distance(probe, stored)
	if err != nil {
		return Result{}, err
	}
	return Result{Distance: dist, Matched: m.Match(dist)}, nil
}

// BestMatch scans candidates in order and returns the one with the
// globally minimal distance. Ties resolve to the first candidate seen.
// Candidates whose embedding length differs from the probe fail the
// whole scan: mixed dimensionality indicates corrupt registration data.
func (m Matcher) BestMatch(probe []float64, candidates []Candidate) (Result, error) {
	if len(probe) == 0 {
		return Result{}, ErrEmptyEmbedding
	}
	best := Result{Distance: sentinelDistance}
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		dist, err := Distance(probe, c.Embedding)
		if err != nil {
			return Result{}, err
		}
		if dist < best.Distance {
			best = Result{ID: c.ID, Email: c.Email, Distance: dist}
		}
	}
	best.Matched = best.ID != "" && m.Match(best.Distance)
	return best, nil
}
