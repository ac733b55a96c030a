package uniforms

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/richinsley/shaderforge/graphics/gputest"
)

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestLayout(t *testing.T) {
	b := New()
	b.SetTime(1.5)
	b.SetFrame(42)
	b.SetResolution(640, 480)
	b.SetPointer(10, 20)
	b.SetBeat(128, 3.25, 0.8125, 0.25, 0.5, 0.75)

	raw := b.Bytes()
	if len(raw) != Size {
		t.Fatalf("len = %d", len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[4:]); got != 42 {
		t.Errorf("frame = %d", got)
	}

	floats := []struct {
		off  int
		want float32
	}{
		{0, 1.5}, {8, 640}, {12, 480}, {16, 10}, {20, 20},
		{24, 128}, {28, 3.25}, {32, 0.8125}, {36, 0.25}, {40, 0.5}, {44, 0.75},
	}
	for _, f := range floats {
		if got := f32At(raw, f.off); got != f.want {
			t.Errorf("offset %d = %v, want %v", f.off, got, f.want)
		}
	}

	if b.Time() != 1.5 || b.Frame() != 42 || b.BPM() != 128 || b.Beat() != 3.25 || b.BarProgress() != 0.8125 {
		t.Error("getters disagree with setters")
	}
	if w, h := b.Resolution(); w != 640 || h != 480 {
		t.Errorf("Resolution() = %v, %v", w, h)
	}
	if x, y := b.Pointer(); x != 10 || y != 20 {
		t.Errorf("Pointer() = %v, %v", x, y)
	}
	if q, e, s := b.Phases(); q != 0.25 || e != 0.5 || s != 0.75 {
		t.Errorf("Phases() = %v %v %v", q, e, s)
	}
}

func TestSettersDoNotUpload(t *testing.T) {
	dev := gputest.New()
	b := New()
	if err := b.Upload(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Upload before Bind = %v", err)
	}
	if err := b.Bind(dev); err != nil {
		t.Fatal(err)
	}
	buf := dev.Buffers()[0]

	b.SetTime(2)
	if buf.Writes != 0 || f32At(buf.Data, 0) != 0 {
		t.Fatal("setter reached the device")
	}
	if err := b.Upload(); err != nil {
		t.Fatal(err)
	}
	if buf.Writes != 1 || f32At(buf.Data, 0) != 2 || len(buf.Data) != Size {
		t.Fatalf("upload wrote %d times, time %v", buf.Writes, f32At(buf.Data, 0))
	}

	if err := b.Bind(dev); err != nil || len(dev.Buffers()) != 1 {
		t.Fatal("second Bind must not allocate")
	}

	b.Destroy()
	if !buf.Destroyed || b.Handle() != nil {
		t.Fatal("Destroy did not release the device buffer")
	}
}
