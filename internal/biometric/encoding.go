// Package biometric defines the face encoding vector consumed by the matching engine.
// Encodings are produced by an external encoder and are never interpreted beyond
// distance computation.
package biometric

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrDimensionMismatch is returned when two encodings (or an encoding and a registry)
// do not share the same dimensionality.
var ErrDimensionMismatch = errors.New("encoding dimension mismatch")

// ErrInvalidEncoding is returned by Validate.
var ErrInvalidEncoding = errors.New("invalid encoding")

// DefaultDim is the dimensionality produced by dlib's face recognition model.
const DefaultDim = 128

// Encoding is a fixed-length real-valued face vector.
type Encoding []float64

// Dim returns the dimensionality of the encoding.
func (e Encoding) Dim() int {
	return len(e)
}

// Clone returns an independent copy of the encoding.
func (e Encoding) Clone() Encoding {
	if e == nil {
		return nil
	}
	out := make(Encoding, len(e))
	copy(out, e)
	return out
}

// Float32 converts the encoding for index structures that work on float32 vectors.
func (e Encoding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Validate checks that the encoding is non-empty and contains only finite values.
func (e Encoding) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("%w: no components", ErrInvalidEncoding)
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidEncoding, i)
		}
	}
	return nil
}

// EuclideanDistance computes the L2 distance between two encodings.
func EuclideanDistance(a, b Encoding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// String formats the encoding as a bracketed list, e.g. "[0.1, 0.2]".
// Components use the shortest representation that parses back to the same float64.
func (e Encoding) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Parse reads an encoding in the bracketed list form written by String.
// Whitespace-separated values without brackets are accepted as well.
func Parse(s string) (Encoding, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("encoding is empty")
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	enc := make(Encoding, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse encoding component %d: %w", i, err)
		}
		enc = append(enc, v)
	}
	return enc, nil
}
