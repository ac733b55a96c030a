// Package beat converts elapsed seconds into musical time.
package beat

import "math"

const (
	DefaultBPM         = 120.0
	DefaultBeatsPerBar = 4
)

// State is the musical position computed by a single Clock.Update call.
// Phases are in [0,1). Hit flags are true only for the update in which the
// corresponding counter changed.
type State struct {
	Beat        float64
	BeatInBar   int
	BarCount    int
	BarProgress float64

	QuarterCount   int
	EighthCount    int
	SixteenthCount int

	QuarterPhase   float64
	EighthPhase    float64
	SixteenthPhase float64

	HitBar       bool
	HitQuarter   bool
	HitEighth    bool
	HitSixteenth bool
}

// Clock derives a State from elapsed time. It remembers the counters of
// the previous update to produce hit flags; call Reset after rewinding.
type Clock struct {
	bpm         float64
	beatsPerBar int

	lastBar       int
	lastQuarter   int
	lastEighth    int
	lastSixteenth int
}

// NewClock returns a clock at the given tempo and time signature.
// Non-positive values fall back to the defaults.
func NewClock(bpm float64, beatsPerBar int) *Clock {
	c := &Clock{}
	c.SetBPM(bpm)
	c.SetTimeSignature(beatsPerBar)
	return c
}

func (c *Clock) SetBPM(bpm float64) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		bpm = DefaultBPM
	}
	c.bpm = bpm
}

func (c *Clock) SetTimeSignature(beatsPerBar int) {
	if beatsPerBar <= 0 {
		beatsPerBar = DefaultBeatsPerBar
	}
	c.beatsPerBar = beatsPerBar
}

func (c *Clock) BPM() float64 {
	if c.bpm <= 0 {
		return DefaultBPM
	}
	return c.bpm
}

func (c *Clock) BeatsPerBar() int {
	if c.beatsPerBar <= 0 {
		return DefaultBeatsPerBar
	}
	return c.beatsPerBar
}

// SecondsPerBeat is the length of one quarter note.
func (c *Clock) SecondsPerBeat() float64 { return 60 / c.BPM() }

// Update computes the musical state at t seconds.
func (c *Clock) Update(t float64) State {
	spb := c.SecondsPerBeat()
	bpb := c.BeatsPerBar()
	barLen := spb * float64(bpb)

	quarter := count(t, spb)
	eighth := count(t, spb/2)
	sixteenth := count(t, spb/4)
	bar := count(t, barLen)

	s := State{
		Beat:           t / spb,
		BeatInBar:      mod(quarter, bpb),
		BarCount:       bar,
		BarProgress:    phase(t, barLen),
		QuarterCount:   quarter,
		EighthCount:    eighth,
		SixteenthCount: sixteenth,
		QuarterPhase:   phase(t, spb),
		EighthPhase:    phase(t, spb/2),
		SixteenthPhase: phase(t, spb/4),
		HitBar:         bar != c.lastBar,
		HitQuarter:     quarter != c.lastQuarter,
		HitEighth:      eighth != c.lastEighth,
		HitSixteenth:   sixteenth != c.lastSixteenth,
	}

	c.lastBar = bar
	c.lastQuarter = quarter
	c.lastEighth = eighth
	c.lastSixteenth = sixteenth
	return s
}

// Reset clears the hit-detection history.
func (c *Clock) Reset() {
	c.lastBar = 0
	c.lastQuarter = 0
	c.lastEighth = 0
	c.lastSixteenth = 0
}

func count(t, period float64) int {
	if period <= 0 {
		return 0
	}
	return int(math.Floor(t / period))
}

func phase(t, period float64) float64 {
	if period <= 0 {
		return 0
	}
	p := math.Mod(t, period) / period
	if p < 0 {
		p += 1
	}
	if p >= 1 {
		p = 0
	}
	return p
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
