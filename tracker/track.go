package tracker

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Interpolation selects how a keyframe blends into the next one.
type Interpolation int

const (
	// Linear is the zero value so keyframes built without an explicit mode lerp.
	Linear Interpolation = iota
	Constant
	Smooth
)

func (i Interpolation) String() string {
	switch i {
	case Constant:
		return "constant"
	case Smooth:
		return "smooth"
	default:
		return "linear"
	}
}

// ParseInterpolation accepts "constant", "linear", "smooth" or an empty
// string (linear).
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear", "lerp":
		return Linear, nil
	case "constant", "step", "hold":
		return Constant, nil
	case "smooth", "smoothstep":
		return Smooth, nil
	}
	return Linear, fmt.Errorf("unknown interpolation %q", s)
}

func (i Interpolation) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Interpolation) UnmarshalText(b []byte) error {
	v, err := ParseInterpolation(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Keyframe pins a value at a row. Interp applies to the segment that
// starts at this keyframe.
type Keyframe struct {
	Row    float64       `yaml:"row" json:"row"`
	Value  float64       `yaml:"value" json:"value"`
	Interp Interpolation `yaml:"interp,omitempty" json:"interp,omitempty"`
}

// Track is an immutable row-sorted list of keyframes.
type Track struct {
	name string
	keys []Keyframe
}

// NewTrack copies and sorts keys by row. Keyframes sharing a row keep
// their relative order.
func NewTrack(name string, keys []Keyframe) *Track {
	sorted := make([]Keyframe, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })
	return &Track{name: name, keys: sorted}
}

func (t *Track) Name() string { return t.name }

// Keyframes returns a copy of the sorted keyframes.
func (t *Track) Keyframes() []Keyframe {
	out := make([]Keyframe, len(t.keys))
	copy(out, t.keys)
	return out
}

// ValueAt samples the track at row.
func (t *Track) ValueAt(row float64) float64 {
	n := len(t.keys)
	if n == 0 {
		return 0
	}
	if row <= t.keys[0].Row || math.IsNaN(row) {
		return t.keys[0].Value
	}
	if row >= t.keys[n-1].Row {
		return t.keys[n-1].Value
	}

	// first keyframe strictly after row; the left neighbour starts the segment
	hi := sort.Search(n, func(i int) bool { return t.keys[i].Row > row })
	a, b := t.keys[hi-1], t.keys[hi]

	span := b.Row - a.Row
	if span <= 0 {
		return b.Value
	}
	f := clamp01((row - a.Row) / span)

	switch a.Interp {
	case Constant:
		return a.Value
	case Smooth:
		f = f * f * (3 - 2*f)
	}
	return a.Value + (b.Value-a.Value)*f
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
