package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarises one column.
type Statistics struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"` // sample variance, 0 for a single value
	StdDev   float64 `json:"stddev"`
}

func computeStatistics(values []float64) (Statistics, error) {
	if len(values) == 0 {
		return Statistics{}, ErrEmptySelection
	}
	s := Statistics{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Mean:  stat.Mean(values, nil),
	}
	if len(values) > 1 {
		s.Variance = stat.Variance(values, nil)
		s.StdDev = math.Sqrt(s.Variance)
	}
	return s, nil
}

// Interval is a closed range [Min, Max].
type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns Max - Min.
func (iv Interval) Width() float64 { return iv.Max - iv.Min }

// Contains reports whether v lies inside the interval.
func (iv Interval) Contains(v float64) bool { return v >= iv.Min && v <= iv.Max }

// Intersect returns the overlap of two intervals and whether it is non-empty.
func (iv Interval) Intersect(other Interval) (Interval, bool) {
	out := Interval{Min: math.Max(iv.Min, other.Min), Max: math.Min(iv.Max, other.Max)}
	return out, out.Min <= out.Max
}

// Data is a consistent snapshot of the masked role arrays, all of the same length.
// Unbound error roles are zero-filled.
type Data struct {
	X    []float64 `json:"x"`
	XErr []float64 `json:"xerr"`
	Y    []float64 `json:"y"`
	YErr []float64 `json:"yerr"`
}

// Len returns the number of points.
func (d Data) Len() int { return len(d.X) }

// HasXErr reports whether any x error is non-zero.
func (d Data) HasXErr() bool { return anyNonZero(d.XErr) }

// HasYErr reports whether any y error is non-zero.
func (d Data) HasYErr() bool { return anyNonZero(d.YErr) }

func anyNonZero(v []float64) bool {
	for _, f := range v {
		if f != 0 {
			return true
		}
	}
	return false
}
