// Package uniforms holds the 48-byte parameter block every pass reads at
// binding 0.
package uniforms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/richinsley/shaderforge/graphics"
)

// Size is the byte length of the block.
const Size = 48

// Byte offsets inside the block. Shaders see the same layout through the
// prologue's BuiltinUniforms struct.
const (
	OffsetTime           = 0
	OffsetFrame          = 4
	OffsetResolution     = 8
	OffsetPointer        = 16
	OffsetBPM            = 24
	OffsetBeat           = 28
	OffsetBarProgress    = 32
	OffsetQuarterPhase   = 36
	OffsetEighthPhase    = 40
	OffsetSixteenthPhase = 44
)

var ErrNotBound = errors.New("uniforms: buffer not bound to a device")

// Buffer is the CPU staging copy of the block plus the device buffer it
// uploads to.
type Buffer struct {
	data [Size]byte

	dev    graphics.Device
	handle graphics.Buffer
}

func New() *Buffer { return &Buffer{} }

// Bind allocates the device-side buffer. Calling it again is a no-op.
func (b *Buffer) Bind(dev graphics.Device) error {
	if b.handle != nil {
		return nil
	}
	h, err := dev.CreateUniformBuffer(Size)
	if err != nil {
		return fmt.Errorf("failed to create uniform buffer: %w", err)
	}
	b.dev = dev
	b.handle = h
	return nil
}

// Upload writes the whole staging block to the device.
func (b *Buffer) Upload() error {
	if b.handle == nil {
		return ErrNotBound
	}
	return b.dev.WriteBuffer(b.handle, b.data[:])
}

// Handle is the device buffer, nil before Bind.
func (b *Buffer) Handle() graphics.Buffer { return b.handle }

func (b *Buffer) Destroy() {
	if b.handle != nil {
		b.dev.DestroyBuffer(b.handle)
		b.handle = nil
		b.dev = nil
	}
}

// Bytes returns a copy of the staging block.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, b.data[:])
	return out
}

func (b *Buffer) SetTime(t float32)    { b.putF32(OffsetTime, t) }
func (b *Buffer) SetFrame(n uint32)    { binary.LittleEndian.PutUint32(b.data[OffsetFrame:], n) }
func (b *Buffer) Time() float32        { return b.f32(OffsetTime) }
func (b *Buffer) Frame() uint32        { return binary.LittleEndian.Uint32(b.data[OffsetFrame:]) }
func (b *Buffer) BPM() float32         { return b.f32(OffsetBPM) }
func (b *Buffer) Beat() float32        { return b.f32(OffsetBeat) }
func (b *Buffer) BarProgress() float32 { return b.f32(OffsetBarProgress) }

func (b *Buffer) SetResolution(w, h float32) {
	b.putF32(OffsetResolution, w)
	b.putF32(OffsetResolution+4, h)
}

func (b *Buffer) Resolution() (float32, float32) {
	return b.f32(OffsetResolution), b.f32(OffsetResolution + 4)
}

func (b *Buffer) SetPointer(x, y float32) {
	b.putF32(OffsetPointer, x)
	b.putF32(OffsetPointer+4, y)
}

func (b *Buffer) Pointer() (float32, float32) {
	return b.f32(OffsetPointer), b.f32(OffsetPointer + 4)
}

// SetBeat stores the tempo and the musical phases for this frame.
func (b *Buffer) SetBeat(bpm, beat, barProgress, quarter, eighth, sixteenth float32) {
	b.putF32(OffsetBPM, bpm)
	b.putF32(OffsetBeat, beat)
	b.putF32(OffsetBarProgress, barProgress)
	b.putF32(OffsetQuarterPhase, quarter)
	b.putF32(OffsetEighthPhase, eighth)
	b.putF32(OffsetSixteenthPhase, sixteenth)
}

// Phases returns the quarter, eighth and sixteenth phases.
func (b *Buffer) Phases() (float32, float32, float32) {
	return b.f32(OffsetQuarterPhase), b.f32(OffsetEighthPhase), b.f32(OffsetSixteenthPhase)
}

func (b *Buffer) putF32(off int, v float32) {
	binary.LittleEndian.PutUint32(b.data[off:], math.Float32bits(v))
}

func (b *Buffer) f32(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.data[off:]))
}
