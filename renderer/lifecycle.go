package renderer

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/uniforms"
)

// gpuState is every device resource owned by one graph.
type gpuState struct {
	dev      graphics.Device
	lang     graphics.Language
	format   gputypes.TextureFormat
	params   *uniforms.Buffer
	layout   graphics.BindLayout
	sampler  graphics.Sampler
	fallback graphics.Texture
	ping     graphics.Texture
	pong     graphics.Texture
}

func clampSize(w, h int) (int, int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Compile allocates the graph's device resources and starts compiling
// every pass. Pipelines may finish later; Render skips passes that are not
// ready. A width or height of zero or less reuses the size recorded by
// Resize. Device failures are returned and leave nothing allocated.
func (g *Graph) Compile(ctx context.Context, dev graphics.Device, format gputypes.TextureFormat, params *uniforms.Buffer, width, height int) error {
	switch {
	case g.destroyed:
		return ErrDestroyed
	case g.compiled:
		return ErrAlreadyCompiled
	case params == nil || params.Handle() == nil:
		return uniforms.ErrNotBound
	}
	if width <= 0 || height <= 0 {
		width, height = g.width, g.height
	}
	g.width, g.height = clampSize(width, height)
	g.gpu = gpuState{dev: dev, lang: dev.Language(), format: format, params: params}
	g.compiled = true

	if err := g.allocate(ctx); err != nil {
		g.release()
		g.compiled = false
		g.gpu = gpuState{}
		return err
	}

	logging.With("renderer").Info("graph compiled",
		"scenes", len(g.scenes), "effects", len(g.effects),
		"width", g.width, "height", g.height)
	return nil
}

func (g *Graph) allocate(ctx context.Context) error {
	s := &g.gpu
	var err error

	s.sampler, err = s.dev.CreateSampler(graphics.SamplerDescriptor{
		Label:  "sf:sampler",
		Filter: gputypes.FilterModeLinear,
		Wrap:   gputypes.AddressModeClampToEdge,
	})
	if err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}

	s.fallback, err = s.dev.CreateTexture(graphics.TextureDescriptor{Label: "sf:fallback", Width: 1, Height: 1, Format: s.format})
	if err != nil {
		return fmt.Errorf("failed to create fallback texture: %w", err)
	}
	if err := s.dev.WriteTexture(s.fallback, []byte{0, 0, 0, 255}); err != nil {
		return fmt.Errorf("failed to fill fallback texture: %w", err)
	}

	s.layout, err = s.dev.CreateBindLayout()
	if err != nil {
		return fmt.Errorf("failed to create bind layout: %w", err)
	}

	for _, id := range g.scenes {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := g.passes[id]
		if p.target, err = g.newTarget(p.name); err != nil {
			return err
		}
		g.startCompile(p)
	}
	for _, id := range g.effects {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.startCompile(g.passes[id])
	}

	if len(g.effects) > 0 {
		if s.ping, err = g.newTarget("ping"); err != nil {
			return err
		}
		if s.pong, err = g.newTarget("pong"); err != nil {
			return err
		}
	}

	for _, id := range g.scenes {
		p := g.passes[id]
		if p.bindSet, err = g.sceneBindSet(p); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) newTarget(label string) (graphics.Texture, error) {
	t, err := g.gpu.dev.CreateTexture(graphics.TextureDescriptor{
		Label:  "sf:target:" + label,
		Width:  g.width,
		Height: g.height,
		Format: g.gpu.format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render target %s: %w", label, err)
	}
	return t, nil
}

func (g *Graph) startCompile(p *pass) {
	lang := g.gpu.lang
	vert := p.vertex
	if vert == "" {
		vert = shader.FullscreenVertex(lang)
		p.vertexCount = shader.FullscreenVertexCount
	}
	if p.vertexCount <= 0 {
		p.vertexCount = shader.FullscreenVertexCount
	}
	p.future = graphics.CompilePipeline(g.gpu.dev, graphics.PipelineDescriptor{
		Label:    "sf:pass:" + p.name,
		Layout:   g.gpu.layout,
		Vertex:   shader.Assemble(lang, graphics.StageVertex, vert),
		Fragment: shader.Assemble(lang, graphics.StageFragment, p.fragment),
		Format:   g.gpu.format,
	})
}

// Resize reallocates every scene target and the ping-pong pair. Pipelines
// and the fallback texture are kept. Before Compile it only records the
// size.
func (g *Graph) Resize(params *uniforms.Buffer, width, height int) error {
	width, height = clampSize(width, height)
	g.width, g.height = width, height
	if !g.compiled || g.destroyed {
		return nil
	}
	if params != nil {
		g.gpu.params = params
	}

	g.dropBindSets()
	dev := g.gpu.dev
	var err error
	for _, id := range g.scenes {
		p := g.passes[id]
		if p.target != nil {
			dev.DestroyTexture(p.target)
			p.target = nil
		}
		if p.target, err = g.newTarget(p.name); err != nil {
			return err
		}
	}
	if len(g.effects) > 0 {
		for _, t := range []*graphics.Texture{&g.gpu.ping, &g.gpu.pong} {
			if *t != nil {
				dev.DestroyTexture(*t)
				*t = nil
			}
		}
		if g.gpu.ping, err = g.newTarget("ping"); err != nil {
			return err
		}
		if g.gpu.pong, err = g.newTarget("pong"); err != nil {
			return err
		}
	}
	logging.With("renderer").Debug("graph resized", "width", width, "height", height)
	return nil
}

func (g *Graph) dropBindSets() {
	dev := g.gpu.dev
	drop := func(p *pass) {
		if p == nil {
			return
		}
		if p.bindSet != nil {
			dev.DestroyBindSet(p.bindSet)
			p.bindSet = nil
		}
		for _, bs := range p.inputs {
			dev.DestroyBindSet(bs)
		}
		p.inputs = nil
	}
	for _, p := range g.passes {
		drop(p)
	}
	drop(g.blit)
}

// Wait blocks until every started compile finished, then installs the
// results.
func (g *Graph) Wait(ctx context.Context) error {
	for _, p := range g.pending() {
		if _, err := p.future.Wait(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	g.poll()
	return nil
}

func (g *Graph) pending() []*pass {
	var out []*pass
	for _, p := range append(append([]*pass(nil), g.passes...), g.blit) {
		if p != nil && p.future != nil && !p.resolved {
			out = append(out, p)
		}
	}
	return out
}

// poll installs every compile that finished since the last call.
func (g *Graph) poll() {
	for _, p := range g.pending() {
		pl, done, err := p.future.Poll()
		if !done {
			continue
		}
		p.resolved = true
		p.result = shader.ResultFrom(err)
		if err != nil {
			logging.With("renderer").Error("pass failed to compile", "pass", p.name, "error", err)
			continue
		}
		p.pipeline = pl
	}
}

// Destroy releases everything the graph owns. Compiles still in flight
// release their pipeline when they land. Later Render calls draw nothing.
func (g *Graph) Destroy() {
	if g.destroyed {
		return
	}
	g.destroyed = true
	if g.compiled {
		g.release()
	}
}

func (g *Graph) release() {
	dev := g.gpu.dev
	if dev == nil {
		return
	}
	g.dropBindSets()
	for _, p := range append(append([]*pass(nil), g.passes...), g.blit) {
		if p == nil {
			continue
		}
		if p.future != nil && !p.resolved {
			p.future.Discard(dev.DestroyPipeline)
		}
		if p.pipeline != nil {
			dev.DestroyPipeline(p.pipeline)
			p.pipeline = nil
		}
		if p.target != nil {
			dev.DestroyTexture(p.target)
			p.target = nil
		}
	}
	for _, t := range []graphics.Texture{g.gpu.ping, g.gpu.pong, g.gpu.fallback} {
		if t != nil {
			dev.DestroyTexture(t)
		}
	}
	g.gpu.ping, g.gpu.pong, g.gpu.fallback = nil, nil, nil
	if g.gpu.sampler != nil {
		dev.DestroySampler(g.gpu.sampler)
		g.gpu.sampler = nil
	}
	if g.gpu.layout != nil {
		dev.DestroyBindLayout(g.gpu.layout)
		g.gpu.layout = nil
	}
}
