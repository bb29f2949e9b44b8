// Package classification implements the probability-vector algebra used to
// carry per-detection class scores through the tracker: Bayesian-style
// combination across frames, and Hellinger-like distance/similarity for
// matching.
package classification

import (
	"math"

	"github.com/pkg/errors"
)

// ErrDimensionMismatch is returned when two classification vectors have
// different lengths.
var ErrDimensionMismatch = errors.New("classification: vectors have mismatched dimensions")

// ErrUnknownClass is returned when a class name is not present in a Table.
var ErrUnknownClass = errors.New("classification: unknown class name")

// ErrEmptyTable is returned when a Table is constructed with no classes.
var ErrEmptyTable = errors.New("classification: class table is empty")

// Vector is a probability vector over a fixed list of class names. The sum
// may be <= 1; the residual mass is treated as "unknown".
type Vector []float64

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (v Vector) sum() float64 {
	s := 0.0
	for _, p := range v {
		s += p
	}
	return s
}

// Combine performs a Bayesian-style product of two classification vectors,
// renormalized by the product mass plus the product of unknown residuals.
func Combine(a, b Vector) (Vector, error) {
	if len(a) != len(b) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "combine: len(a)=%d len(b)=%d", len(a), len(b))
	}
	unknownA := clamp(1.0-a.sum(), 0, 1)
	unknownB := clamp(1.0-b.sum(), 0, 1)

	product := make(Vector, len(a))
	sum := 0.0
	for i := range a {
		product[i] = a[i] * b[i]
		sum += product[i]
	}

	denom := sum + unknownA*unknownB + 1e-6
	result := make(Vector, len(a))
	for i := range product {
		result[i] = product[i] / denom
	}
	return result, nil
}

// Distance returns the Hellinger-like distance between two classification
// vectors: sqrt(0.5 * (a-b)^T(a-b)). For proper distributions this lies in
// [0, 1].
func Distance(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "distance: len(a)=%d len(b)=%d", len(a), len(b))
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(0.5 * sum), nil
}

// Similarity returns 1 - Distance(a, b).
func Similarity(a, b Vector) (float64, error) {
	d, err := Distance(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - d, nil
}

// Max returns the largest component of v, or 0 for an empty vector.
func (v Vector) Max() float64 {
	m := 0.0
	for i, p := range v {
		if i == 0 || p > m {
			m = p
		}
	}
	return m
}

// Table is an immutable-after-construction list of class names, used to
// build probability vectors by name.
type Table struct {
	classes []string
	index   map[string]int
}

// NewTable builds a Table from a non-empty list of class names.
func NewTable(classes []string) (*Table, error) {
	if len(classes) == 0 {
		return nil, ErrEmptyTable
	}
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	cp := make([]string, len(classes))
	copy(cp, classes)
	return &Table{classes: cp, index: idx}, nil
}

// Len returns the number of classes in the table.
func (t *Table) Len() int {
	return len(t.classes)
}

// Classes returns a copy of the class name list.
func (t *Table) Classes() []string {
	out := make([]string, len(t.classes))
	copy(out, t.classes)
	return out
}

// IndexOf returns the index of className, or ErrUnknownClass.
func (t *Table) IndexOf(className string) (int, error) {
	i, ok := t.index[className]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownClass, "class %q", className)
	}
	return i, nil
}

// Classification builds a probability vector concentrating `probability`
// mass on className and spreading the residual (1-probability) uniformly
// across the other classes.
func (t *Table) Classification(className string, probability float64) (Vector, error) {
	j, err := t.IndexOf(className)
	if err != nil {
		return nil, err
	}
	unknown := clamp(1.0-probability, 0.0, 1.0)
	denom := math.Max(float64(len(t.classes)-1), 1.0)
	v := make(Vector, len(t.classes))
	for i := range v {
		v[i] = unknown / denom
	}
	v[j] = probability
	return v, nil
}

// UniformPrior returns a vector with every class set to basePrior.
func (t *Table) UniformPrior(basePrior float64) Vector {
	v := make(Vector, len(t.classes))
	for i := range v {
		v[i] = basePrior
	}
	return v
}

// Prior returns the uniform prior 1/len(classes) over every class.
func (t *Table) Prior() Vector {
	return t.UniformPrior(1.0 / float64(len(t.classes)))
}
