// Package gldevice implements graphics.Device on OpenGL 4.1 core.
//
// Every method must be called on the thread that owns the current GL
// context.
package gldevice

import (
	"fmt"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
)

var (
	glInitOnce sync.Once
	glInitErr  error
)

// Option configures a Device.
type Option func(*Device)

// WithWebGL2 makes the device accept GLSL ES 3.00 sources and translate
// them to GLSL 4.10 before compiling.
func WithWebGL2() Option {
	return func(d *Device) { d.translate = true }
}

type Device struct {
	translate bool
	vao       uint32
	screen    *texture
	pbo       uint32
	destroyed bool
}

var (
	_ graphics.Device = (*Device)(nil)
	_ graphics.Reader = (*Device)(nil)
)

// New loads GL entry points for the current context and returns a device
// drawing into it.
func New(opts ...Option) (*Device, error) {
	glInitOnce.Do(func() {
		glInitErr = gl.Init()
	})
	if glInitErr != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", glInitErr)
	}

	d := &Device{}
	for _, opt := range opts {
		opt(d)
	}
	// Geometry comes from gl_VertexID; core profile still requires a bound
	// vertex array.
	gl.GenVertexArrays(1, &d.vao)
	gl.GenBuffers(1, &d.pbo)

	logging.With("gldevice").Info("OpenGL device ready",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)),
		"webgl2", d.translate)
	return d, nil
}

func (d *Device) Language() graphics.Language {
	if d.translate {
		return graphics.GLSLES
	}
	return graphics.GLSL
}

type texture struct {
	id     uint32
	fbo    uint32
	w, h   int
	format gputypes.TextureFormat
	screen bool
}

func (t *texture) Width() int                     { return t.w }
func (t *texture) Height() int                    { return t.h }
func (t *texture) Format() gputypes.TextureFormat { return t.format }

// Screen returns the default framebuffer of the current context as a
// presentation target of the given size.
func (d *Device) Screen(w, h int) graphics.Texture {
	if d.screen == nil {
		d.screen = &texture{screen: true, format: gputypes.TextureFormatRGBA8Unorm}
	}
	d.screen.w, d.screen.h = w, h
	return d.screen
}

func internalFormat(f gputypes.TextureFormat) (int32, uint32) {
	switch f {
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA32Float:
		return gl.RGBA16F, gl.FLOAT
	default:
		return gl.RGBA8, gl.UNSIGNED_BYTE
	}
}

func (d *Device) CreateTexture(desc graphics.TextureDescriptor) (graphics.Texture, error) {
	if d.destroyed {
		return nil, graphics.ErrDeviceLost
	}
	t := &texture{w: desc.Width, h: desc.Height, format: desc.Format}
	ifmt, ptype := internalFormat(desc.Format)

	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, ifmt, int32(t.w), int32(t.h), 0, gl.RGBA, ptype, nil)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.id, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		d.DestroyTexture(t)
		return nil, fmt.Errorf("framebuffer for %s is not complete (0x%x)", desc.Label, status)
	}
	return t, nil
}

func (d *Device) WriteTexture(tex graphics.Texture, data []byte) error {
	t := tex.(*texture)
	if t.screen {
		return fmt.Errorf("cannot upload into the default framebuffer")
	}
	if len(data) < t.w*t.h*4 {
		return fmt.Errorf("texture upload of %d bytes, need %d", len(data), t.w*t.h*4)
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(t.w), int32(t.h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(data))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

func (d *Device) DestroyTexture(tex graphics.Texture) {
	t, ok := tex.(*texture)
	if !ok || t.screen {
		return
	}
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

type sampler struct{ id uint32 }

func wrapMode(m gputypes.AddressMode) int32 {
	switch m {
	case gputypes.AddressModeRepeat:
		return gl.REPEAT
	case gputypes.AddressModeMirrorRepeat:
		return gl.MIRRORED_REPEAT
	default:
		return gl.CLAMP_TO_EDGE
	}
}

func filterMode(m gputypes.FilterMode) int32 {
	if m == gputypes.FilterModeNearest {
		return gl.NEAREST
	}
	return gl.LINEAR
}

func (d *Device) CreateSampler(desc graphics.SamplerDescriptor) (graphics.Sampler, error) {
	s := &sampler{}
	gl.GenSamplers(1, &s.id)
	f, w := filterMode(desc.Filter), wrapMode(desc.Wrap)
	gl.SamplerParameteri(s.id, gl.TEXTURE_MIN_FILTER, f)
	gl.SamplerParameteri(s.id, gl.TEXTURE_MAG_FILTER, f)
	gl.SamplerParameteri(s.id, gl.TEXTURE_WRAP_S, w)
	gl.SamplerParameteri(s.id, gl.TEXTURE_WRAP_T, w)
	return s, nil
}

func (d *Device) DestroySampler(s graphics.Sampler) {
	if smp, ok := s.(*sampler); ok && smp.id != 0 {
		gl.DeleteSamplers(1, &smp.id)
		smp.id = 0
	}
}

type buffer struct {
	id   uint32
	size int
}

func (d *Device) CreateUniformBuffer(size int) (graphics.Buffer, error) {
	if d.destroyed {
		return nil, graphics.ErrDeviceLost
	}
	b := &buffer{size: size}
	gl.GenBuffers(1, &b.id)
	gl.BindBuffer(gl.UNIFORM_BUFFER, b.id)
	gl.BufferData(gl.UNIFORM_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return b, nil
}

func (d *Device) WriteBuffer(buf graphics.Buffer, data []byte) error {
	b := buf.(*buffer)
	if len(data) > b.size {
		return fmt.Errorf("write of %d bytes into %d byte uniform buffer", len(data), b.size)
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, b.id)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return nil
}

func (d *Device) DestroyBuffer(buf graphics.Buffer) {
	if b, ok := buf.(*buffer); ok && b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}

// GL has no layout objects; binding points are fixed when a program links.
type layout struct{}

func (d *Device) CreateBindLayout() (graphics.BindLayout, error) { return layout{}, nil }

func (d *Device) DestroyBindLayout(graphics.BindLayout) {}

type bindSet struct {
	ubo      uint32
	textures [graphics.ChannelCount]uint32
	samplers [graphics.ChannelCount]uint32
}

func (d *Device) CreateBindSet(desc graphics.BindSetDescriptor) (graphics.BindSet, error) {
	b, ok := desc.Uniforms.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%s: uniform buffer not created by this device", desc.Label)
	}
	bs := &bindSet{ubo: b.id}
	for i, ch := range desc.Channels {
		t, ok := ch.Texture.(*texture)
		if !ok || t.screen {
			return nil, fmt.Errorf("%s: channel %d is not a sampleable texture", desc.Label, i)
		}
		s, ok := ch.Sampler.(*sampler)
		if !ok {
			return nil, fmt.Errorf("%s: channel %d has no sampler", desc.Label, i)
		}
		bs.textures[i] = t.id
		bs.samplers[i] = s.id
	}
	return bs, nil
}

func (d *Device) DestroyBindSet(graphics.BindSet) {}

// Destroy releases the device's own objects. Resources created through it
// must be destroyed by their owners first.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	gl.DeleteVertexArrays(1, &d.vao)
	gl.DeleteBuffers(1, &d.pbo)
}
