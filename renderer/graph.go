// Package renderer composites named scene passes and a post-processing
// chain into one presented frame.
package renderer

import (
	"errors"
	"fmt"

	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/shader"
)

// PreviousLayer names the output of the layer before an effect. Scenes
// binding it get the fallback texture.
const PreviousLayer = "__prev"

var (
	ErrAlreadyCompiled = errors.New("renderer: graph already compiled; build a new graph to recompile")
	ErrDestroyed       = errors.New("renderer: graph destroyed")
)

// PassID is a stable handle into the graph's pass arena.
type PassID int

type passKind int

const (
	scenePass passKind = iota
	effectPass
	blitPass
)

type pass struct {
	id          PassID
	kind        passKind
	name        string
	fragment    string
	vertex      string
	vertexCount int
	channels    [graphics.ChannelCount]string

	// set by Compile
	target   graphics.Texture
	future   *graphics.PipelineFuture
	pipeline graphics.Pipeline
	result   shader.CompileResult
	resolved bool

	// scene passes cache one bind set; effects and the blit cache one per
	// input texture
	bindSet graphics.BindSet
	inputs  map[graphics.Texture]graphics.BindSet
}

// ready reports whether the pass has a usable pipeline.
func (p *pass) ready() bool { return p.pipeline != nil }

// Graph is an ordered set of named scenes followed by an effect chain.
// Building is free of device side effects; Compile materializes it.
// A Graph is driven from one goroutine.
type Graph struct {
	passes  []*pass
	index   map[string]PassID
	scenes  []PassID
	effects []PassID
	blit    *pass

	gpu       gpuState
	width     int
	height    int
	compiled  bool
	destroyed bool
}

func New() *Graph {
	return &Graph{index: make(map[string]PassID), width: 1, height: 1}
}

type SceneOption func(*pass)

// WithVertex replaces the fullscreen quad with custom geometry of count
// vertices generated from the vertex index.
func WithVertex(src string, count int) SceneOption {
	return func(p *pass) {
		p.vertex = src
		p.vertexCount = count
	}
}

// WithChannel wires channel slot to the output of the named scene.
// Slots outside 0..3 are ignored.
func WithChannel(slot int, source string) SceneOption {
	return func(p *pass) {
		if slot >= 0 && slot < graphics.ChannelCount {
			p.channels[slot] = source
		}
	}
}

// Scene appends a named pass drawing into its own target. Declaring a
// name again replaces that scene's definition and keeps its original
// position in the draw order.
func (g *Graph) Scene(name, fragment string, opts ...SceneOption) *Graph {
	p := &pass{kind: scenePass, name: name, fragment: fragment}
	for _, opt := range opts {
		opt(p)
	}

	if id, ok := g.index[name]; ok && !g.compiled {
		p.id = id
		g.passes[id] = p
		return g
	}
	if g.compiled {
		return g
	}
	p.id = PassID(len(g.passes))
	g.passes = append(g.passes, p)
	g.index[name] = p.id
	g.scenes = append(g.scenes, p.id)
	return g
}

// Effect appends a post-processing pass reading the previous layer on
// channel 0.
func (g *Graph) Effect(fragment string) *Graph {
	if g.compiled {
		return g
	}
	p := &pass{
		id:       PassID(len(g.passes)),
		kind:     effectPass,
		name:     fmt.Sprintf("__effect_%d", len(g.effects)),
		fragment: fragment,
	}
	p.channels[0] = PreviousLayer
	g.passes = append(g.passes, p)
	g.effects = append(g.effects, p.id)
	return g
}

// Lookup returns the handle of a named scene.
func (g *Graph) Lookup(name string) (PassID, bool) {
	id, ok := g.index[name]
	return id, ok
}

// Target returns the render target of a scene, nil before Compile.
func (g *Graph) Target(id PassID) graphics.Texture {
	if int(id) < 0 || int(id) >= len(g.passes) {
		return nil
	}
	return g.passes[id].target
}

// SceneNames lists the scenes in draw order.
func (g *Graph) SceneNames() []string {
	names := make([]string, len(g.scenes))
	for i, id := range g.scenes {
		names[i] = g.passes[id].name
	}
	return names
}

func (g *Graph) EffectCount() int { return len(g.effects) }

// Size is the current viewport size.
func (g *Graph) Size() (int, int) { return g.width, g.height }

// PassResult reports the compile state of one pass.
type PassResult struct {
	Name   string
	Result shader.CompileResult
	Ready  bool
}

// Results lists compile outcomes for scenes then effects. Passes still
// compiling have Ready false and an OK result.
func (g *Graph) Results() []PassResult {
	var out []PassResult
	add := func(p *pass) {
		r := PassResult{Name: p.name, Ready: p.ready(), Result: p.result}
		if !p.resolved {
			r.Result = shader.CompileResult{OK: true}
		}
		out = append(out, r)
	}
	for _, id := range g.scenes {
		add(g.passes[id])
	}
	for _, id := range g.effects {
		add(g.passes[id])
	}
	return out
}

// Err joins the compile errors of every resolved pass.
func (g *Graph) Err() error {
	var errs []error
	for _, r := range g.Results() {
		if !r.Result.OK {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Result.Error))
		}
	}
	return errors.Join(errs...)
}
