// Package gputest provides a recording graphics.Device for tests.
package gputest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/graphics"
)

type Texture struct {
	ID        int
	Label     string
	W, H      int
	Fmt       gputypes.TextureFormat
	Pixels    []byte
	Destroyed bool
}

func (t *Texture) Width() int                     { return t.W }
func (t *Texture) Height() int                    { return t.H }
func (t *Texture) Format() gputypes.TextureFormat { return t.Fmt }
func (t *Texture) String() string                 { return fmt.Sprintf("tex#%d(%s)", t.ID, t.Label) }

type Sampler struct {
	Desc      graphics.SamplerDescriptor
	Destroyed bool
}

type Buffer struct {
	Data      []byte
	Writes    int
	Destroyed bool
}

type Layout struct{ Destroyed bool }

type Pipeline struct {
	ID        int
	Desc      graphics.PipelineDescriptor
	Destroyed bool
}

type BindSet struct {
	ID        int
	Desc      graphics.BindSetDescriptor
	Destroyed bool
}

type CommandBuffer struct {
	Draws []graphics.DrawCall
}

type Encoder struct {
	dev   *Device
	draws []graphics.DrawCall
}

func (e *Encoder) Draw(dc graphics.DrawCall) { e.draws = append(e.draws, dc) }

func (e *Encoder) Finish() (graphics.CommandBuffer, error) {
	return &CommandBuffer{Draws: e.draws}, nil
}

// Device records every call. The zero value is not usable; call New.
type Device struct {
	Lang graphics.Language

	// FailPipeline, when set, decides whether CreatePipeline fails.
	FailPipeline func(graphics.PipelineDescriptor) error
	// FailTextures makes every CreateTexture call fail.
	FailTextures bool
	// Async holds compiles started through CreatePipelineAsync until
	// ResolvePending is called.
	Async bool

	mu        sync.Mutex
	nextID    int
	textures  []*Texture
	pipelines []*Pipeline
	bindSets  []*BindSet
	buffers   []*Buffer
	samplers  []*Sampler
	submitted []*CommandBuffer
	gates     []chan struct{}
	pending   []*graphics.PipelineFuture
	destroyed bool
}

func New() *Device { return &Device{Lang: graphics.WGSL} }

func (d *Device) id() int {
	d.nextID++
	return d.nextID
}

func (d *Device) Language() graphics.Language { return d.Lang }

func (d *Device) CreateTexture(desc graphics.TextureDescriptor) (graphics.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailTextures {
		return nil, errors.New("gputest: texture allocation failed")
	}
	t := &Texture{ID: d.id(), Label: desc.Label, W: desc.Width, H: desc.Height, Fmt: desc.Format}
	d.textures = append(d.textures, t)
	return t, nil
}

// Present returns a presentation target that is not tracked as an owned
// texture.
func (d *Device) Present(w, h int) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Texture{ID: d.id(), Label: "present", W: w, H: h, Fmt: gputypes.TextureFormatBGRA8Unorm}
}

func (d *Device) WriteTexture(t graphics.Texture, data []byte) error {
	tex := t.(*Texture)
	tex.Pixels = append([]byte(nil), data...)
	return nil
}

func (d *Device) DestroyTexture(t graphics.Texture) {
	if tex, ok := t.(*Texture); ok {
		tex.Destroyed = true
	}
}

func (d *Device) CreateSampler(desc graphics.SamplerDescriptor) (graphics.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Sampler{Desc: desc}
	d.samplers = append(d.samplers, s)
	return s, nil
}

func (d *Device) DestroySampler(s graphics.Sampler) {
	if smp, ok := s.(*Sampler); ok {
		smp.Destroyed = true
	}
}

func (d *Device) CreateUniformBuffer(size int) (graphics.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{Data: make([]byte, size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) WriteBuffer(b graphics.Buffer, data []byte) error {
	buf := b.(*Buffer)
	if len(data) > len(buf.Data) {
		return fmt.Errorf("gputest: write of %d bytes into %d byte buffer", len(data), len(buf.Data))
	}
	copy(buf.Data, data)
	buf.Writes++
	return nil
}

func (d *Device) DestroyBuffer(b graphics.Buffer) {
	if buf, ok := b.(*Buffer); ok {
		buf.Destroyed = true
	}
}

func (d *Device) CreateBindLayout() (graphics.BindLayout, error) { return &Layout{}, nil }

func (d *Device) DestroyBindLayout(l graphics.BindLayout) {
	if lay, ok := l.(*Layout); ok {
		lay.Destroyed = true
	}
}

func (d *Device) CreatePipeline(desc graphics.PipelineDescriptor) (graphics.Pipeline, error) {
	if d.FailPipeline != nil {
		if err := d.FailPipeline(desc); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Pipeline{ID: d.id(), Desc: desc}
	d.pipelines = append(d.pipelines, p)
	return p, nil
}

func (d *Device) CreatePipelineAsync(desc graphics.PipelineDescriptor) *graphics.PipelineFuture {
	if !d.Async {
		return graphics.Resolved(d.CreatePipeline(desc))
	}
	gate := make(chan struct{})
	f := graphics.Go(func() (graphics.Pipeline, error) {
		<-gate
		return d.CreatePipeline(desc)
	})
	d.mu.Lock()
	d.gates = append(d.gates, gate)
	d.pending = append(d.pending, f)
	d.mu.Unlock()
	return f
}

// ResolvePending lets every held compile finish and waits for them.
func (d *Device) ResolvePending() {
	d.mu.Lock()
	gates, pending := d.gates, d.pending
	d.gates, d.pending = nil, nil
	d.mu.Unlock()

	for _, g := range gates {
		close(g)
	}
	for _, f := range pending {
		f.Wait(context.Background())
	}
}

func (d *Device) DestroyPipeline(p graphics.Pipeline) {
	if pl, ok := p.(*Pipeline); ok {
		d.mu.Lock()
		pl.Destroyed = true
		d.mu.Unlock()
	}
}

func (d *Device) CreateBindSet(desc graphics.BindSetDescriptor) (graphics.BindSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, ch := range desc.Channels {
		if ch.Texture == nil || ch.Sampler == nil {
			return nil, fmt.Errorf("gputest: channel %d left unbound", i)
		}
	}
	b := &BindSet{ID: d.id(), Desc: desc}
	d.bindSets = append(d.bindSets, b)
	return b, nil
}

func (d *Device) DestroyBindSet(b graphics.BindSet) {
	if bs, ok := b.(*BindSet); ok {
		bs.Destroyed = true
	}
}

func (d *Device) NewEncoder() (graphics.Encoder, error) {
	if d.destroyed {
		return nil, graphics.ErrDeviceLost
	}
	return &Encoder{dev: d}, nil
}

func (d *Device) Submit(cb graphics.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, cb.(*CommandBuffer))
	return nil
}

// ReadTexture returns the texture's uploaded pixels, or zeroes.
func (d *Device) ReadTexture(t graphics.Texture) ([]byte, error) {
	tex := t.(*Texture)
	if tex.Pixels != nil {
		return append([]byte(nil), tex.Pixels...), nil
	}
	return make([]byte, tex.W*tex.H*4), nil
}

func (d *Device) Destroy() { d.destroyed = true }

// Submitted returns the command buffers passed to Submit.
func (d *Device) Submitted() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.submitted...)
}

// Textures returns every texture created through CreateTexture.
func (d *Device) Textures() []*Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// LiveTextures counts created textures that were not destroyed.
func (d *Device) LiveTextures() int {
	n := 0
	for _, t := range d.Textures() {
		if !t.Destroyed {
			n++
		}
	}
	return n
}

func (d *Device) Pipelines() []*Pipeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pipeline(nil), d.pipelines...)
}

func (d *Device) BindSets() []*BindSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*BindSet(nil), d.bindSets...)
}

func (d *Device) Buffers() []*Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Buffer(nil), d.buffers...)
}

// Recorder is a graphics.Encoder that keeps draws without a device.
type Recorder struct {
	Draws []graphics.DrawCall
}

func (r *Recorder) Draw(dc graphics.DrawCall) { r.Draws = append(r.Draws, dc) }

func (r *Recorder) Finish() (graphics.CommandBuffer, error) {
	return &CommandBuffer{Draws: r.Draws}, nil
}
