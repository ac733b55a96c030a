package renderer

import (
	"fmt"

	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/uniforms"
)

// Stats describes one Render call.
type Stats struct {
	Draws   int
	Skipped int
}

// Render records one frame into enc. Scenes draw into their own targets
// in order. With effects, each reads the previous layer and the last one
// draws to present; without effects the last scene is blitted to present.
// An empty graph draws nothing.
func (g *Graph) Render(enc graphics.Encoder, present graphics.Texture, params *uniforms.Buffer) Stats {
	var st Stats
	if !g.compiled || g.destroyed {
		return st
	}
	if params != nil && params.Handle() != nil && params != g.gpu.params {
		g.gpu.params = params
		g.dropBindSets()
	}
	g.poll()

	for _, id := range g.scenes {
		p := g.passes[id]
		if !p.ready() || p.target == nil {
			st.Skipped++
			continue
		}
		if p.bindSet == nil {
			bs, err := g.sceneBindSet(p)
			if err != nil {
				logging.With("renderer").Error("failed to bind scene inputs", "pass", p.name, "error", err)
				st.Skipped++
				continue
			}
			p.bindSet = bs
		}
		g.draw(enc, &st, p, p.bindSet, p.target)
	}

	if len(g.effects) > 0 {
		g.renderEffects(enc, &st, present)
		return st
	}

	if len(g.scenes) > 0 {
		last := g.passes[g.scenes[len(g.scenes)-1]]
		g.renderBlit(enc, &st, last.target, present)
	}
	return st
}

func (g *Graph) renderEffects(enc graphics.Encoder, st *Stats, present graphics.Texture) {
	prev := g.gpu.fallback
	if n := len(g.scenes); n > 0 {
		if t := g.passes[g.scenes[n-1]].target; t != nil {
			prev = t
		}
	}

	write, spare := g.gpu.ping, g.gpu.pong
	for i, id := range g.effects {
		p := g.passes[id]
		if !p.ready() {
			st.Skipped++
			continue
		}
		last := i == len(g.effects)-1
		target := present
		if !last {
			target = write
		}

		bs, err := g.inputBindSet(p, prev)
		if err != nil {
			logging.With("renderer").Error("failed to bind effect input", "pass", p.name, "error", err)
			st.Skipped++
			continue
		}
		g.draw(enc, st, p, bs, target)

		if !last {
			prev = write
			write, spare = spare, write
		}
	}
}

func (g *Graph) renderBlit(enc graphics.Encoder, st *Stats, src, present graphics.Texture) {
	if src == nil {
		return
	}
	if g.blit == nil {
		g.blit = &pass{id: -1, kind: blitPass, name: "__blit", fragment: shader.BlitFragment(g.gpu.lang)}
		g.blit.channels[0] = PreviousLayer
		g.startCompile(g.blit)
		g.poll()
	}
	if !g.blit.ready() {
		st.Skipped++
		return
	}
	bs, err := g.inputBindSet(g.blit, src)
	if err != nil {
		logging.With("renderer").Error("failed to bind blit input", "error", err)
		st.Skipped++
		return
	}
	g.draw(enc, st, g.blit, bs, present)
}

func (g *Graph) draw(enc graphics.Encoder, st *Stats, p *pass, bs graphics.BindSet, target graphics.Texture) {
	enc.Draw(graphics.DrawCall{
		Label:       "sf:draw:" + p.name,
		Target:      target,
		Pipeline:    p.pipeline,
		BindSet:     bs,
		VertexCount: p.vertexCount,
		Clear:       graphics.DefaultClear,
	})
	st.Draws++
}

// resolve returns the texture feeding a scene channel.
func (g *Graph) resolve(p *pass, source string) graphics.Texture {
	if source == "" || source == PreviousLayer || source == p.name {
		return g.gpu.fallback
	}
	id, ok := g.index[source]
	if !ok {
		return g.gpu.fallback
	}
	if t := g.passes[id].target; t != nil {
		return t
	}
	return g.gpu.fallback
}

func (g *Graph) sceneBindSet(p *pass) (graphics.BindSet, error) {
	desc := g.bindDesc(p.name)
	for i, src := range p.channels {
		desc.Channels[i].Texture = g.resolve(p, src)
	}
	return g.gpu.dev.CreateBindSet(desc)
}

// inputBindSet returns the bind set with channel 0 set to input and the
// rest at the fallback, cached per input texture.
func (g *Graph) inputBindSet(p *pass, input graphics.Texture) (graphics.BindSet, error) {
	if bs, ok := p.inputs[input]; ok {
		return bs, nil
	}
	desc := g.bindDesc(p.name)
	desc.Channels[0].Texture = input
	bs, err := g.gpu.dev.CreateBindSet(desc)
	if err != nil {
		return nil, err
	}
	if p.inputs == nil {
		p.inputs = make(map[graphics.Texture]graphics.BindSet)
	}
	p.inputs[input] = bs
	return bs, nil
}

func (g *Graph) bindDesc(name string) graphics.BindSetDescriptor {
	desc := graphics.BindSetDescriptor{
		Label:    fmt.Sprintf("sf:bind:%s", name),
		Layout:   g.gpu.layout,
		Uniforms: g.gpu.params.Handle(),
	}
	for i := range desc.Channels {
		desc.Channels[i] = graphics.Channel{Texture: g.gpu.fallback, Sampler: g.gpu.sampler}
	}
	return desc
}
