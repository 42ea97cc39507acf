// Package matcher identifies the enrolled member closest to a query encoding.
package matcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/store"
)

// DefaultThreshold is the face_recognition library's default tolerance for
// 128-dimensional dlib encodings.
const DefaultThreshold = 0.6

// ErrInvalidThreshold is returned for negative or non-finite thresholds.
var ErrInvalidThreshold = errors.New("threshold must be a finite, non-negative number")

// Result is the outcome of one identification.
type Result struct {
	Identified bool
	Name       string
	Distance   float64
}

// NoMatch is the result for a query that matched nobody under the threshold.
func NoMatch() Result {
	return Result{}
}

// Identified is the result for a positive identification.
func Identified(name string, distance float64) Result {
	return Result{Identified: true, Name: name, Distance: distance}
}

func (r Result) String() string {
	if !r.Identified {
		return "no match"
	}
	return fmt.Sprintf("identified %s (distance %.4f)", r.Name, r.Distance)
}

// Source is the read side of a member registry.
type Source interface {
	// All yields members in registry order.
	All() iter.Seq[store.Member]
}

// IndexedSource is a Source that also supports direct lookups, required when
// an Index narrows the scan.
type IndexedSource interface {
	Source
	Get(name string) (store.Member, bool)
	Position(name string) (int, bool)
	Len() int
	Dim() int
}

// ValidateThreshold checks that threshold is usable.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Identify scans every member of src and returns the closest one if its Euclidean
// distance is within threshold. Among equidistant members the one that comes first
// in registry order wins. An empty source yields NoMatch. Members whose distance
// is not a number never match.
func Identify(query biometric.Encoding, src Source, threshold float64) (Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return NoMatch(), err
	}
	if err := query.Validate(); err != nil {
		return NoMatch(), fmt.Errorf("query: %w", err)
	}

	found := false
	var bestName string
	bestDist := math.Inf(1)

	for m := range src.All() {
		d, err := biometric.EuclideanDistance(query, m.Encoding)
		if err != nil {
			return NoMatch(), fmt.Errorf("compare with %q: %w", m.Name, err)
		}
		if math.IsNaN(d) {
			continue
		}
		// Strict comparison keeps the earliest member on ties.
		if !found || d < bestDist {
			found = true
			bestName = m.Name
			bestDist = d
		}
	}

	if !found || !(bestDist <= threshold) {
		return NoMatch(), nil
	}
	return Identified(bestName, bestDist), nil
}

// Matcher applies a configured threshold and, optionally, a candidate index.
type Matcher struct {
	threshold    float64
	index        Index
	candidates   int
	minIndexSize int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithIndex narrows large scans to the candidates returned by idx. Candidates
// are re-scored with exact distances, so the index only affects recall on very
// large registries, never the distance reported or the tie-break.
func WithIndex(idx Index, candidates, minSize int) Option {
	return func(m *Matcher) {
		m.index = idx
		if candidates > 0 {
			m.candidates = candidates
		}
		if minSize >= 0 {
			m.minIndexSize = minSize
		}
	}
}

// New creates a Matcher for the given threshold.
func New(threshold float64, opts ...Option) (*Matcher, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	m := &Matcher{
		threshold:    threshold,
		candidates:   DefaultCandidates,
		minIndexSize: DefaultMinIndexSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Identify returns the best match for query in src.
func (m *Matcher) Identify(ctx context.Context, query biometric.Encoding, src IndexedSource) (Result, error) {
	if err := ctx.Err(); err != nil {
		return NoMatch(), err
	}
	if m.index == nil || src.Len() < m.minIndexSize {
		return Identify(query, src, m.threshold)
	}
	if src.Len() == 0 {
		return NoMatch(), nil
	}
	if query.Dim() != src.Dim() {
		return NoMatch(), fmt.Errorf("%w: query has %d components, registry has %d",
			biometric.ErrDimensionMismatch, query.Dim(), src.Dim())
	}

	names, err := m.index.Candidates(ctx, query, m.candidates)
	if err != nil {
		return NoMatch(), fmt.Errorf("candidate search: %w", err)
	}
	return Identify(query, candidateSource(src, names), m.threshold)
}

// candidateSource yields the named members that still exist, in registry order.
func candidateSource(src IndexedSource, names []string) Source {
	type positioned struct {
		pos    int
		member store.Member
	}

	var picked []positioned
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		member, ok := src.Get(name)
		if !ok {
			continue
		}
		pos, _ := src.Position(name)
		picked = append(picked, positioned{pos: pos, member: member})
	}

	slices.SortFunc(picked, func(a, b positioned) int {
		return cmp.Compare(a.pos, b.pos)
	})

	return sourceFunc(func(yield func(store.Member) bool) {
		for _, p := range picked {
			if !yield(p.member) {
				return
			}
		}
	})
}

type sourceFunc iter.Seq[store.Member]

func (f sourceFunc) All() iter.Seq[store.Member] {
	return iter.Seq[store.Member](f)
}
