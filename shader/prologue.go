// Package shader builds the declarations prepended to every pass and
// ships the built-in shaders.
package shader

import (
	"fmt"
	"strings"

	"github.com/richinsley/shaderforge/graphics"
)

type FieldType int

const (
	F32 FieldType = iota
	U32
	Vec2F
)

// Size in bytes inside the uniform block.
func (t FieldType) Size() int {
	if t == Vec2F {
		return 8
	}
	return 4
}

func (t FieldType) wgsl() string {
	switch t {
	case U32:
		return "u32"
	case Vec2F:
		return "vec2f"
	}
	return "f32"
}

func (t FieldType) glsl() string {
	switch t {
	case U32:
		return "uint"
	case Vec2F:
		return "vec2"
	}
	return "float"
}

// Field is one member of the uniform block.
type Field struct {
	Name   string
	Type   FieldType
	Offset int
}

// Prologue is a versioned description of everything a pass's source may
// use without declaring it.
type Prologue struct {
	Version        int
	Struct         string
	Instance       string
	Uniforms       []Field
	Channels       int
	UniformBinding int
	// Channel n uses FirstChannelBinding+2n for the texture and +1 for its
	// sampler.
	FirstChannelBinding int
}

// V1 is the layout shared with the uniforms package.
var V1 = Prologue{
	Version:  1,
	Struct:   "BuiltinUniforms",
	Instance: "uniforms",
	Uniforms: []Field{
		{"time", F32, 0},
		{"frame", U32, 4},
		{"resolution", Vec2F, 8},
		{"mouse", Vec2F, 16},
		{"bpm", F32, 24},
		{"beat", F32, 28},
		{"barProgress", F32, 32},
		{"quarterPhase", F32, 36},
		{"eighthPhase", F32, 40},
		{"sixteenthPhase", F32, 44},
	},
	Channels:            graphics.ChannelCount,
	UniformBinding:      0,
	FirstChannelBinding: 1,
}

// Fields returns a copy of the uniform members.
func (p Prologue) Fields() []Field {
	return append([]Field(nil), p.Uniforms...)
}

// BlockSize is the byte size covered by the uniform fields.
func (p Prologue) BlockSize() int {
	n := 0
	for _, f := range p.Uniforms {
		if end := f.Offset + f.Type.Size(); end > n {
			n = end
		}
	}
	return n
}

func (p Prologue) TextureBinding(channel int) int { return p.FirstChannelBinding + 2*channel }
func (p Prologue) SamplerBinding(channel int) int { return p.FirstChannelBinding + 2*channel + 1 }

// ChannelName is the shader-visible name of a channel texture.
func ChannelName(channel int) string { return fmt.Sprintf("iChannel%d", channel) }

// Render returns the prologue text for one stage. Vertex stages only see
// the uniform block. The result always ends in a newline.
func (p Prologue) Render(lang graphics.Language, stage graphics.Stage) string {
	var b strings.Builder
	switch lang {
	case graphics.WGSL:
		p.renderWGSL(&b, stage)
	case graphics.GLSLES:
		b.WriteString("#version 300 es\nprecision highp float;\nprecision highp int;\n")
		p.renderGLSL(&b, stage)
	default:
		b.WriteString("#version 410 core\n")
		p.renderGLSL(&b, stage)
	}
	return b.String()
}

func (p Prologue) renderWGSL(b *strings.Builder, stage graphics.Stage) {
	fmt.Fprintf(b, "struct %s {\n", p.Struct)
	for _, f := range p.Uniforms {
		fmt.Fprintf(b, "  %s : %s,\n", f.Name, f.Type.wgsl())
	}
	b.WriteString("}\n")
	fmt.Fprintf(b, "@group(0) @binding(%d) var<uniform> %s : %s;\n", p.UniformBinding, p.Instance, p.Struct)
	if stage == graphics.StageVertex {
		return
	}
	for i := 0; i < p.Channels; i++ {
		name := ChannelName(i)
		fmt.Fprintf(b, "@group(0) @binding(%d) var %s : texture_2d<f32>;\n", p.TextureBinding(i), name)
		fmt.Fprintf(b, "@group(0) @binding(%d) var %sSampler : sampler;\n", p.SamplerBinding(i), name)
	}
}

// GLSL 4.1 has no binding qualifiers; devices bind the block and sampler
// units by name.
func (p Prologue) renderGLSL(b *strings.Builder, stage graphics.Stage) {
	fmt.Fprintf(b, "layout(std140) uniform %s {\n", p.Struct)
	for _, f := range p.Uniforms {
		fmt.Fprintf(b, "  %s %s;\n", f.Type.glsl(), f.Name)
	}
	fmt.Fprintf(b, "} %s;\n", p.Instance)
	if stage == graphics.StageVertex {
		return
	}
	for i := 0; i < p.Channels; i++ {
		fmt.Fprintf(b, "uniform sampler2D %s;\n", ChannelName(i))
	}
	b.WriteString("layout(location = 0) out vec4 fragColor;\n")
}
