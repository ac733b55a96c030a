// Package halgpu implements graphics.Device on the gogpu/wgpu hardware
// abstraction layer. It renders without a window; presentation targets
// come from Offscreen and are read back with ReadTexture.
package halgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/shader"
)

// Option configures a Device.
type Option func(*Device)

// WithAsync compiles pipelines on their own goroutines.
func WithAsync() Option {
	return func(d *Device) { d.async = true }
}

type Device struct {
	dev      hal.Device
	queue    hal.Queue
	instance hal.Instance
	async    bool

	mu        sync.Mutex
	inflight  []submission
	destroyed atomic.Bool

	// life is read-held by pipeline work that may run off the frame
	// thread; Destroy write-holds it while closing the HAL device.
	life   sync.RWMutex
	closed bool
}

type submission struct {
	index uint64
	cmd   hal.CommandBuffer
}

var (
	_ graphics.Device        = (*Device)(nil)
	_ graphics.Reader        = (*Device)(nil)
	_ graphics.AsyncCompiler = (*Device)(nil)
)

// Open selects the most capable registered backend and opens its first
// adapter.
func Open(opts ...Option) (*Device, error) {
	backend, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("no GPU backend available: %w", err)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Backends: gputypes.BackendsAll})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s instance: %w", backend.Variant(), err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no %s adapters found", backend.Variant())
	}
	open, err := adapters[0].Adapter.Open(0, adapters[0].Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("failed to open %s: %w", adapters[0].Info.Name, err)
	}

	d := New(open.Device, open.Queue, opts...)
	d.instance = instance
	logging.With("halgpu").Info("GPU device ready",
		"backend", backend.Variant(), "adapter", adapters[0].Info.Name, "async", d.async)
	return d, nil
}

// New wraps an open HAL device and queue.
func New(dev hal.Device, queue hal.Queue, opts ...Option) *Device {
	d := &Device{dev: dev, queue: queue}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Language() graphics.Language { return graphics.WGSL }

type texture struct {
	tex    hal.Texture
	view   hal.TextureView
	w, h   int
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
}

func (t *texture) Width() int                     { return t.w }
func (t *texture) Height() int                    { return t.h }
func (t *texture) Format() gputypes.TextureFormat { return t.format }

const targetUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

func (d *Device) CreateTexture(desc graphics.TextureDescriptor) (graphics.Texture, error) {
	if d.destroyed.Load() {
		return nil, graphics.ErrDeviceLost
	}
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         targetUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %s: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label,
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("failed to create view of %s: %w", desc.Label, err)
	}
	return &texture{tex: tex, view: view, w: desc.Width, h: desc.Height, format: desc.Format}, nil
}

// Offscreen creates a presentation target for headless rendering.
// The caller destroys it with DestroyTexture.
func (d *Device) Offscreen(w, h int) (graphics.Texture, error) {
	return d.CreateTexture(graphics.TextureDescriptor{
		Label:  "sf:offscreen",
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
}

func (d *Device) WriteTexture(tex graphics.Texture, data []byte) error {
	t := tex.(*texture)
	if len(data) < t.w*t.h*4 {
		return fmt.Errorf("texture upload of %d bytes, need %d", len(data), t.w*t.h*4)
	}
	return d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(t.w * 4), RowsPerImage: uint32(t.h)},
		&hal.Extent3D{Width: uint32(t.w), Height: uint32(t.h), DepthOrArrayLayers: 1},
	)
}

func (d *Device) DestroyTexture(tex graphics.Texture) {
	t, ok := tex.(*texture)
	if !ok || t.tex == nil {
		return
	}
	d.dev.DestroyTextureView(t.view)
	d.dev.DestroyTexture(t.tex)
	t.view, t.tex = nil, nil
}

type sampler struct{ s hal.Sampler }

func (d *Device) CreateSampler(desc graphics.SamplerDescriptor) (graphics.Sampler, error) {
	s, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.Wrap,
		AddressModeV: desc.Wrap,
		AddressModeW: desc.Wrap,
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}
	return &sampler{s: s}, nil
}

func (d *Device) DestroySampler(s graphics.Sampler) {
	if smp, ok := s.(*sampler); ok && smp.s != nil {
		d.dev.DestroySampler(smp.s)
		smp.s = nil
	}
}

type buffer struct {
	buf  hal.Buffer
	size int
}

func (d *Device) CreateUniformBuffer(size int) (graphics.Buffer, error) {
	if d.destroyed.Load() {
		return nil, graphics.ErrDeviceLost
	}
	b, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "sf:uniforms",
		Size:  uint64(size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create uniform buffer: %w", err)
	}
	return &buffer{buf: b, size: size}, nil
}

func (d *Device) WriteBuffer(buf graphics.Buffer, data []byte) error {
	b := buf.(*buffer)
	if len(data) > b.size {
		return fmt.Errorf("write of %d bytes into %d byte uniform buffer", len(data), b.size)
	}
	return d.queue.WriteBuffer(b.buf, 0, data)
}

func (d *Device) DestroyBuffer(buf graphics.Buffer) {
	if b, ok := buf.(*buffer); ok && b.buf != nil {
		d.dev.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

type layout struct {
	group    hal.BindGroupLayout
	pipeline hal.PipelineLayout
}

// CreateBindLayout builds the single group every pass uses.
func (d *Device) CreateBindLayout() (graphics.BindLayout, error) {
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    uint32(shader.V1.UniformBinding),
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for ch := 0; ch < graphics.ChannelCount; ch++ {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(shader.V1.TextureBinding(ch)),
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(shader.V1.SamplerBinding(ch)),
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
	}

	group, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "sf:layout", Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout: %w", err)
	}
	pl, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "sf:pipeline-layout",
		BindGroupLayouts: []hal.BindGroupLayout{group},
	})
	if err != nil {
		d.dev.DestroyBindGroupLayout(group)
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	return &layout{group: group, pipeline: pl}, nil
}

func (d *Device) DestroyBindLayout(l graphics.BindLayout) {
	lay, ok := l.(*layout)
	if !ok || lay.group == nil {
		return
	}
	d.dev.DestroyPipelineLayout(lay.pipeline)
	d.dev.DestroyBindGroupLayout(lay.group)
	lay.group, lay.pipeline = nil, nil
}

type bindSet struct {
	group  hal.BindGroup
	inputs [graphics.ChannelCount]*texture
}

var errForeign = errors.New("resource not created by this device")

func (d *Device) CreateBindSet(desc graphics.BindSetDescriptor) (graphics.BindSet, error) {
	lay, ok := desc.Layout.(*layout)
	if !ok {
		return nil, fmt.Errorf("%s: layout: %w", desc.Label, errForeign)
	}
	ubo, ok := desc.Uniforms.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%s: uniforms: %w", desc.Label, errForeign)
	}

	bs := &bindSet{}
	entries := []gputypes.BindGroupEntry{{
		Binding:  uint32(shader.V1.UniformBinding),
		Resource: gputypes.BufferBinding{Buffer: ubo.buf.NativeHandle(), Size: uint64(ubo.size)},
	}}
	for i, ch := range desc.Channels {
		t, ok := ch.Texture.(*texture)
		if !ok {
			return nil, fmt.Errorf("%s: channel %d texture: %w", desc.Label, i, errForeign)
		}
		s, ok := ch.Sampler.(*sampler)
		if !ok {
			return nil, fmt.Errorf("%s: channel %d sampler: %w", desc.Label, i, errForeign)
		}
		bs.inputs[i] = t
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  uint32(shader.V1.TextureBinding(i)),
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  uint32(shader.V1.SamplerBinding(i)),
				Resource: gputypes.SamplerBinding{Sampler: s.s.NativeHandle()},
			})
	}

	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: desc.Label, Layout: lay.group, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group %s: %w", desc.Label, err)
	}
	bs.group = group
	return bs, nil
}

func (d *Device) DestroyBindSet(b graphics.BindSet) {
	if bs, ok := b.(*bindSet); ok && bs.group != nil {
		d.dev.DestroyBindGroup(bs.group)
		bs.group = nil
	}
}

// Destroy waits for the GPU and closes the device.
func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	if err := d.dev.WaitIdle(); err != nil {
		logging.With("halgpu").Warn("wait idle failed", "error", err)
	}
	d.reclaim(^uint64(0))

	// Waits out compiles still running on their goroutines.
	d.life.Lock()
	defer d.life.Unlock()
	d.closed = true
	d.dev.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
}
