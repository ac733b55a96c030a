package beat

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestQuarterHitAcrossBeatBoundary(t *testing.T) {
	c := NewClock(120, 4)
	if s := c.Update(0.49); s.HitQuarter {
		t.Fatal("unexpected quarter hit at 0.49s")
	}
	if s := c.Update(0.51); !s.HitQuarter {
		t.Fatal("expected quarter hit at 0.51s")
	}
	if s := c.Update(0.52); s.HitQuarter {
		t.Fatal("hit flag must last a single update")
	}
}

func TestOneHitPerIncrement(t *testing.T) {
	for _, bpm := range []float64{60, 120, 137.5, 174} {
		c := NewClock(bpm, 4)
		spb := 60 / bpm
		hits := 0
		var tm float64
		for i := 0; i <= 10000; i++ {
			tm = float64(i) * 0.001
			if c.Update(tm).HitQuarter {
				hits++
			}
		}
		want := int(math.Floor(tm / spb))
		if hits != want {
			t.Errorf("bpm %v: got %d quarter hits, want %d", bpm, hits, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	tests := []struct {
		bpm  float64
		bpb  int
		want float64
		wbpb int
	}{
		{0, 0, 120, 4},
		{-10, -3, 120, 4},
		{math.NaN(), 3, 120, 3},
		{90, 7, 90, 7},
	}
	for _, tt := range tests {
		c := NewClock(tt.bpm, tt.bpb)
		if c.BPM() != tt.want || c.BeatsPerBar() != tt.wbpb {
			t.Errorf("NewClock(%v, %d) = %v/%d, want %v/%d", tt.bpm, tt.bpb, c.BPM(), c.BeatsPerBar(), tt.want, tt.wbpb)
		}
	}
	var zero Clock
	if s := zero.Update(0.75); s.QuarterCount != 1 {
		t.Errorf("zero clock should run at 120 bpm, got quarter count %d", s.QuarterCount)
	}
}

func TestPhasesAndCounters(t *testing.T) {
	c := NewClock(120, 4)
	s := c.Update(2.625)

	if s.QuarterCount != 5 || s.EighthCount != 10 || s.SixteenthCount != 21 || s.BarCount != 1 {
		t.Fatalf("counters = %d/%d/%d/%d", s.QuarterCount, s.EighthCount, s.SixteenthCount, s.BarCount)
	}
	if s.BeatInBar != 1 {
		t.Errorf("BeatInBar = %d, want 1", s.BeatInBar)
	}
	if !almostEqual(s.Beat, 5.25) {
		t.Errorf("Beat = %v", s.Beat)
	}
	if !almostEqual(s.QuarterPhase, 0.25) || !almostEqual(s.EighthPhase, 0.5) || !almostEqual(s.SixteenthPhase, 0) {
		t.Errorf("phases = %v %v %v", s.QuarterPhase, s.EighthPhase, s.SixteenthPhase)
	}
	if !almostEqual(s.BarProgress, 0.3125) {
		t.Errorf("BarProgress = %v", s.BarProgress)
	}
}

func TestPhaseRange(t *testing.T) {
	c := NewClock(133, 3)
	for i := -500; i < 500; i++ {
		s := c.Update(float64(i) * 0.0137)
		for _, p := range []float64{s.QuarterPhase, s.EighthPhase, s.SixteenthPhase, s.BarProgress} {
			if p < 0 || p >= 1 {
				t.Fatalf("phase %v out of range at step %d", p, i)
			}
		}
		if s.BeatInBar < 0 || s.BeatInBar >= 3 {
			t.Fatalf("BeatInBar %d out of range", s.BeatInBar)
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	c := NewClock(120, 4)
	c.Update(10)
	c.Reset()
	s := c.Update(0.1)
	if s.HitQuarter || s.HitBar || s.HitEighth || s.HitSixteenth {
		t.Fatalf("no hit expected after reset near zero: %+v", s)
	}

	c.Update(10)
	if s := c.Update(0.1); !s.HitQuarter {
		t.Fatal("rewinding without reset should report a transient hit")
	}
}
