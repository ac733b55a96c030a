// Package tracker implements the row-based timeline: named keyframe tracks
// sampled at a row derived from elapsed time, wrapped around a beat clock.
package tracker

import (
	"math"
	"sort"
	"time"

	"github.com/richinsley/shaderforge/beat"
	"github.com/richinsley/shaderforge/logging"
)

const (
	DefaultRowsPerBeat = 4
	DefaultRows        = 512
)

type PlayState int

const (
	Stopped PlayState = iota
	Playing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Config holds the timeline geometry. Zero or negative fields take the
// defaults (120 bpm, 4 rows per beat, 4 beats per bar, 512 rows).
type Config struct {
	BPM         float64 `yaml:"bpm"`
	RowsPerBeat int     `yaml:"rows_per_beat"`
	BeatsPerBar int     `yaml:"beats_per_bar"`
	Rows        int     `yaml:"rows"`
}

func (c Config) withDefaults() Config {
	if c.BPM <= 0 || math.IsNaN(c.BPM) || math.IsInf(c.BPM, 0) {
		c.BPM = beat.DefaultBPM
	}
	if c.RowsPerBeat <= 0 {
		c.RowsPerBeat = DefaultRowsPerBeat
	}
	if c.BeatsPerBar <= 0 {
		c.BeatsPerBar = beat.DefaultBeatsPerBar
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	return c
}

type Option func(*Tracker)

// WithClock replaces the wall clock used to anchor playback.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker owns playback state and the named tracks. It is driven from a
// single frame loop and is not safe for concurrent use.
type Tracker struct {
	cfg   Config
	clock *beat.Clock
	now   func() time.Time

	state   PlayState
	anchor  time.Time
	offset  float64
	elapsed float64
	row     int

	tracks map[string]*Track
}

func New(cfg Config, opts ...Option) *Tracker {
	cfg = cfg.withDefaults()
	t := &Tracker{
		cfg:    cfg,
		clock:  beat.NewClock(cfg.BPM, cfg.BeatsPerBar),
		now:    time.Now,
		tracks: make(map[string]*Track),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Config() Config { return t.cfg }

// SetClock swaps the wall clock. Playback continues from the current
// position on the new clock.
func (t *Tracker) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	if t.state == Playing {
		t.offset += t.now().Sub(t.anchor).Seconds()
		t.anchor = now()
	}
	t.now = now
}

// Clock exposes the wrapped beat clock.
func (t *Tracker) Clock() *beat.Clock { return t.clock }

func (t *Tracker) SetBPM(bpm float64) {
	t.cfg.BPM = bpm
	t.cfg = t.cfg.withDefaults()
	t.clock.SetBPM(t.cfg.BPM)
}

func (t *Tracker) SecondsPerRow() float64 {
	return (60 / t.cfg.BPM) / float64(t.cfg.RowsPerBeat)
}

func (t *Tracker) Play() {
	if t.state == Playing {
		return
	}
	t.anchor = t.now()
	t.state = Playing
	logging.With("tracker").Debug("play", "offset", t.offset)
}

func (t *Tracker) Pause() {
	if t.state != Playing {
		return
	}
	t.offset += t.now().Sub(t.anchor).Seconds()
	t.state = Paused
	logging.With("tracker").Debug("pause", "offset", t.offset)
}

// Stop returns to the start of the timeline from any state.
func (t *Tracker) Stop() {
	t.state = Stopped
	t.offset = 0
	t.elapsed = 0
	t.row = 0
	t.clock.Reset()
}

// SeekRow jumps to row, clamped to the timeline. The beat clock is reset
// and primed at the new position so the next Tick reports no stale hits.
func (t *Tracker) SeekRow(row int) {
	if row < 0 {
		row = 0
	}
	if row > t.cfg.Rows-1 {
		row = t.cfg.Rows - 1
	}
	t.offset = float64(row) * t.SecondsPerRow()
	if t.state == Playing {
		t.anchor = t.now()
	}
	t.elapsed = t.offset
	t.row = row
	t.clock.Reset()
	t.clock.Update(t.offset)
}

// Tick advances the timeline to the current wall-clock instant and returns
// the beat state at the new elapsed time.
func (t *Tracker) Tick() beat.State {
	elapsed := t.offset
	if t.state == Playing {
		elapsed += t.now().Sub(t.anchor).Seconds()
	}
	t.elapsed = elapsed

	r := int(math.Floor(elapsed / t.SecondsPerRow()))
	r %= t.cfg.Rows
	if r < 0 {
		r += t.cfg.Rows
	}
	t.row = r
	return t.clock.Update(elapsed)
}

// Row is the row computed by the last Tick or SeekRow.
func (t *Tracker) Row() int { return t.row }

func (t *Tracker) IsPlaying() bool { return t.state == Playing }

func (t *Tracker) State() PlayState { return t.state }

// Elapsed is the timeline time in seconds computed by the last Tick.
func (t *Tracker) Elapsed() float64 { return t.elapsed }

// Track replaces the named track with a sorted copy of keys.
func (t *Tracker) Track(name string, keys []Keyframe) *Tracker {
	t.tracks[name] = NewTrack(name, keys)
	return t
}

// Value samples a track at the current row. Unknown tracks yield 0.
func (t *Tracker) Value(name string) float64 {
	return t.ValueAt(name, float64(t.row))
}

func (t *Tracker) ValueAt(name string, row float64) float64 {
	tr, ok := t.tracks[name]
	if !ok {
		return 0
	}
	return tr.ValueAt(row)
}

// Tracks lists the track names in sorted order.
func (t *Tracker) Tracks() []string {
	names := make([]string, 0, len(t.tracks))
	for n := range t.tracks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
