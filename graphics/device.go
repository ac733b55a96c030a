// Package graphics describes the small set of device capabilities the
// compositor needs: render-target textures, one uniform buffer, bind sets,
// pipelines compiled from source text, and clear-and-draw passes.
package graphics

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// ErrDeviceLost is returned by operations on a destroyed device.
var ErrDeviceLost = errors.New("graphics: device destroyed")

// Handles are opaque to callers; each backend asserts its own types.
type (
	Sampler       interface{}
	Buffer        interface{}
	BindLayout    interface{}
	Pipeline      interface{}
	BindSet       interface{}
	CommandBuffer interface{}
)

type Texture interface {
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
}

type SamplerDescriptor struct {
	Label  string
	Filter gputypes.FilterMode
	Wrap   gputypes.AddressMode
}

// ChannelCount is the number of texture inputs every pass exposes.
const ChannelCount = 4

type Channel struct {
	Texture Texture
	Sampler Sampler
}

// BindSetDescriptor binds the uniform block and the four channel inputs.
type BindSetDescriptor struct {
	Label    string
	Layout   BindLayout
	Uniforms Buffer
	Channels [ChannelCount]Channel
}

type PipelineDescriptor struct {
	Label    string
	Layout   BindLayout
	Vertex   ShaderSource
	Fragment ShaderSource
	Format   gputypes.TextureFormat
}

// DrawCall is one clear-and-draw pass into Target.
type DrawCall struct {
	Label       string
	Target      Texture
	Pipeline    Pipeline
	BindSet     BindSet
	VertexCount int
	Clear       gputypes.Color
}

// Encoder records draws for a single submission.
type Encoder interface {
	Draw(DrawCall)
	Finish() (CommandBuffer, error)
}

type Device interface {
	Language() Language

	CreateTexture(TextureDescriptor) (Texture, error)
	// WriteTexture uploads tightly packed RGBA8 pixels covering the texture.
	WriteTexture(Texture, []byte) error
	DestroyTexture(Texture)

	CreateSampler(SamplerDescriptor) (Sampler, error)
	DestroySampler(Sampler)

	CreateUniformBuffer(size int) (Buffer, error)
	WriteBuffer(Buffer, []byte) error
	DestroyBuffer(Buffer)

	// CreateBindLayout returns the layout shared by every pass: binding 0
	// uniforms, then a texture and sampler pair per channel.
	CreateBindLayout() (BindLayout, error)
	DestroyBindLayout(BindLayout)

	// CreatePipeline returns *CompileError for shader failures.
	CreatePipeline(PipelineDescriptor) (Pipeline, error)
	DestroyPipeline(Pipeline)

	CreateBindSet(BindSetDescriptor) (BindSet, error)
	DestroyBindSet(BindSet)

	NewEncoder() (Encoder, error)
	Submit(CommandBuffer) error

	Destroy()
}

// Reader is implemented by devices that can copy a texture back to host
// memory as tightly packed RGBA8 rows, top row first.
type Reader interface {
	ReadTexture(Texture) ([]byte, error)
}

// AsyncCompiler is implemented by devices that compile pipelines off the
// frame loop.
type AsyncCompiler interface {
	CreatePipelineAsync(PipelineDescriptor) *PipelineFuture
}

// CompilePipeline starts a compile on dev, asynchronously when supported.
func CompilePipeline(dev Device, desc PipelineDescriptor) *PipelineFuture {
	if ac, ok := dev.(AsyncCompiler); ok {
		return ac.CreatePipelineAsync(desc)
	}
	return Resolved(dev.CreatePipeline(desc))
}

// DefaultClear is opaque black.
var DefaultClear = gputypes.Color{R: 0, G: 0, B: 0, A: 1}
