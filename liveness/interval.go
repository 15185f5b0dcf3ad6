package liveness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
)

// Range is a half-open span of instruction positions [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Intersects(o Range) bool { return r.Start < o.End && o.Start < r.End }
func (r Range) Covers(pos int) bool     { return r.Start <= pos && pos < r.End }
func (r Range) String() string          { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Interval is the lifetime of one virtual register as a sorted sequence of
// disjoint ranges.
type Interval struct {
	Value  lir.Value
	Class  asm.RegClass
	Ranges []Range

	start, end int
}

func NewInterval(v lir.Value, class asm.RegClass, ranges ...Range) *Interval {
	iv := &Interval{Value: v, Class: class, Ranges: append([]Range(nil), ranges...)}
	iv.canonicalize()
	return iv
}

// Start is the first position of the interval.
func (iv *Interval) Start() int { return iv.start }

// Finish is one past the last position of the interval.
func (iv *Interval) Finish() int { return iv.end }

func (iv *Interval) IsEmpty() bool { return len(iv.Ranges) == 0 }

func (iv *Interval) AddRange(r Range) {
	if r.End <= r.Start {
		return
	}
	iv.Ranges = append(iv.Ranges, r)
	iv.canonicalize()
}

// MergeWith folds the ranges of o into iv.
func (iv *Interval) MergeWith(o *Interval) {
	if o == nil || o == iv {
		return
	}
	iv.Ranges = append(iv.Ranges, o.Ranges...)
	iv.canonicalize()
}

// canonicalize sorts the ranges, coalesces overlapping and touching ones
// and recomputes the cached bounds.
func (iv *Interval) canonicalize() {
	slices.SortFunc(iv.Ranges, func(a, b Range) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
	out := iv.Ranges[:0]
	for _, r := range iv.Ranges {
		if r.End <= r.Start {
			continue
		}
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	iv.Ranges = out
	iv.start, iv.end = 0, 0
	if len(out) > 0 {
		iv.start = out[0].Start
		iv.end = out[len(out)-1].End
	}
}

// Intersects reports whether any range of iv overlaps any range of o.
func (iv *Interval) Intersects(o *Interval) bool {
	if iv.IsEmpty() || o.IsEmpty() || iv.end <= o.start || o.end <= iv.start {
		return false
	}
	i, j := 0, 0
	for i < len(iv.Ranges) && j < len(o.Ranges) {
		a, b := iv.Ranges[i], o.Ranges[j]
		if a.Intersects(b) {
			return true
		}
		if a.End <= b.End {
			i++
		} else {
			j++
		}
	}
	return false
}

// Follows reports whether iv and o are disjoint and one ends exactly where
// the other starts.
func (iv *Interval) Follows(o *Interval) bool {
	if iv.IsEmpty() || o.IsEmpty() || iv.Intersects(o) {
		return false
	}
	return iv.end == o.start || o.end == iv.start
}

func (iv *Interval) Covers(pos int) bool {
	for _, r := range iv.Ranges {
		if r.Covers(pos) {
			return true
		}
	}
	return false
}

func (iv *Interval) Equal(o *Interval) bool {
	return iv.Value == o.Value && iv.Class == o.Class && slices.Equal(iv.Ranges, o.Ranges)
}

func (iv *Interval) Clone() *Interval {
	c := *iv
	c.Ranges = slices.Clone(iv.Ranges)
	return &c
}

func (iv *Interval) String() string {
	parts := make([]string, len(iv.Ranges))
	for i, r := range iv.Ranges {
		parts[i] = r.String()
	}
	return fmt.Sprintf("%s %s %s", iv.Value, iv.Class, strings.Join(parts, " "))
}
