package gldevice

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/translator"
)

type program struct {
	id uint32
}

// CreatePipeline compiles and links both stages. Compile and link
// failures come back as *graphics.CompileError.
func (d *Device) CreatePipeline(desc graphics.PipelineDescriptor) (graphics.Pipeline, error) {
	if d.destroyed {
		return nil, graphics.ErrDeviceLost
	}

	vert, err := d.stageCode(desc.Label, desc.Vertex)
	if err != nil {
		return nil, err
	}
	frag, err := d.stageCode(desc.Label, desc.Fragment)
	if err != nil {
		return nil, err
	}

	id, err := newProgram(desc, vert, frag)
	if err != nil {
		return nil, err
	}

	gl.UseProgram(id)
	block := gl.GetUniformBlockIndex(id, gl.Str(vert.name(shader.V1.Struct)+"\x00"))
	if block == gl.INVALID_INDEX {
		block = gl.GetUniformBlockIndex(id, gl.Str(frag.name(shader.V1.Struct)+"\x00"))
	}
	if block != gl.INVALID_INDEX {
		gl.UniformBlockBinding(id, block, uint32(shader.V1.UniformBinding))
	}
	for i := 0; i < graphics.ChannelCount; i++ {
		loc := gl.GetUniformLocation(id, gl.Str(frag.name(shader.ChannelName(i))+"\x00"))
		if loc != -1 {
			gl.Uniform1i(loc, int32(i))
		}
	}
	gl.UseProgram(0)
	return &program{id: id}, nil
}

func (d *Device) DestroyPipeline(p graphics.Pipeline) {
	if prog, ok := p.(*program); ok && prog.id != 0 {
		gl.DeleteProgram(prog.id)
		prog.id = 0
	}
}

// stage is a compilable GLSL 4.10 stage and the names it declares.
type stage struct {
	src  graphics.ShaderSource
	code string
	tr   translator.Result
}

func (s stage) name(ident string) string { return s.tr.Name(ident) }

func (d *Device) stageCode(label string, src graphics.ShaderSource) (stage, error) {
	if src.Language != graphics.GLSLES {
		return stage{src: src, code: src.Code}, nil
	}
	res, err := translator.ToGLSL410(src.Code, src.Stage)
	if err != nil {
		return stage{}, &graphics.CompileError{Label: label, Diagnostics: diagnostics(src, err.Error())}
	}
	return stage{src: src, code: res.Code, tr: res}, nil
}

func diagnostics(src graphics.ShaderSource, log string) []graphics.Diagnostic {
	diags := shader.ParseInfoLog(src, log)
	if len(diags) == 0 {
		diags = []graphics.Diagnostic{{Stage: src.Stage, Message: strings.TrimSpace(log)}}
	}
	return diags
}

func newProgram(desc graphics.PipelineDescriptor, vert, frag stage) (uint32, error) {
	vertexShader, err := compileShader(desc.Label, vert, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vertexShader)
	fragmentShader, err := compileShader(desc.Label, frag, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fragmentShader)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, &graphics.CompileError{Label: desc.Label, Diagnostics: []graphics.Diagnostic{{
			Stage:   graphics.StageFragment,
			Message: fmt.Sprintf("link failed: %s", strings.TrimSpace(strings.TrimRight(log, "\x00"))),
		}}}
	}
	return program, nil
}

func compileShader(label string, s stage, shaderType uint32) (uint32, error) {
	sh := gl.CreateShader(shaderType)
	csources, free := gl.Strs(s.code + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(sh, logLength, nil, gl.Str(logText))
		gl.DeleteShader(sh)
		return 0, &graphics.CompileError{Label: label, Diagnostics: diagnostics(s.src, logText)}
	}
	return sh, nil
}
