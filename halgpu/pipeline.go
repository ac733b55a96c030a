package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/shader"
)

const entryPoint = "main"

type pipeline struct {
	vs, fs hal.ShaderModule
	rp     hal.RenderPipeline
}

// CreatePipeline validates both WGSL stages with naga before handing
// them to the backend, so shader errors carry user line numbers.
func (d *Device) CreatePipeline(desc graphics.PipelineDescriptor) (graphics.Pipeline, error) {
	d.life.RLock()
	defer d.life.RUnlock()
	if d.destroyed.Load() {
		return nil, graphics.ErrDeviceLost
	}
	lay, ok := desc.Layout.(*layout)
	if !ok {
		return nil, fmt.Errorf("%s: layout: %w", desc.Label, errForeign)
	}

	var diags []graphics.Diagnostic
	for _, src := range []graphics.ShaderSource{desc.Vertex, desc.Fragment} {
		if src.Language != graphics.WGSL {
			return nil, fmt.Errorf("%s: %s stage is %s, device wants WGSL", desc.Label, src.Stage, src.Language)
		}
		diags = append(diags, shader.ValidateWGSL(src)...)
	}
	if shader.HasErrors(diags) {
		return nil, &graphics.CompileError{Label: desc.Label, Diagnostics: diags}
	}

	p := &pipeline{}
	var err error
	if p.vs, err = d.module(desc.Label+":vs", desc.Vertex); err != nil {
		return nil, err
	}
	if p.fs, err = d.module(desc.Label+":fs", desc.Fragment); err != nil {
		d.dev.DestroyShaderModule(p.vs)
		return nil, err
	}

	p.rp, err = d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: lay.pipeline,
		Vertex: hal.VertexState{Module: p.vs, EntryPoint: entryPoint},
		Fragment: &hal.FragmentState{
			Module:     p.fs,
			EntryPoint: entryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.Format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		d.dev.DestroyShaderModule(p.fs)
		d.dev.DestroyShaderModule(p.vs)
		return nil, &graphics.CompileError{Label: desc.Label, Diagnostics: []graphics.Diagnostic{{
			Stage:   graphics.StageFragment,
			Message: fmt.Sprintf("pipeline creation failed: %v", err),
		}}}
	}
	return p, nil
}

func (d *Device) module(label string, src graphics.ShaderSource) (hal.ShaderModule, error) {
	m, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: src.Code},
	})
	if err != nil {
		return nil, &graphics.CompileError{Label: label, Diagnostics: []graphics.Diagnostic{{
			Stage:   src.Stage,
			Message: err.Error(),
		}}}
	}
	return m, nil
}

// CreatePipelineAsync compiles on a goroutine when the device was opened
// WithAsync, and inline otherwise.
func (d *Device) CreatePipelineAsync(desc graphics.PipelineDescriptor) *graphics.PipelineFuture {
	if !d.async {
		return graphics.Resolved(d.CreatePipeline(desc))
	}
	return graphics.Go(func() (graphics.Pipeline, error) {
		return d.CreatePipeline(desc)
	})
}

// DestroyPipeline may be called from a compile goroutine when a discarded
// future lands late. Once the device is closed it does nothing.
func (d *Device) DestroyPipeline(gp graphics.Pipeline) {
	p, ok := gp.(*pipeline)
	if !ok || p.rp == nil {
		return
	}
	d.life.RLock()
	defer d.life.RUnlock()
	if d.closed {
		return
	}
	d.dev.DestroyRenderPipeline(p.rp)
	d.dev.DestroyShaderModule(p.fs)
	d.dev.DestroyShaderModule(p.vs)
	p.rp, p.fs, p.vs = nil, nil, nil
}
