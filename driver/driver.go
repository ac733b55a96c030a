// Package driver runs the per-frame loop: it advances the timeline,
// refreshes the parameter buffer and renders the active pass graph.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/beat"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/renderer"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/tracker"
	"github.com/richinsley/shaderforge/uniforms"
)

// FrameState is handed to on-frame hooks after the parameter buffer is
// updated and before the graph is encoded.
type FrameState struct {
	// Time is playback time in seconds, pauses excluded.
	Time  float64
	Frame uint32
	// Beat is nil when no tracker is attached.
	Beat    *beat.State
	Tracker *tracker.Tracker
}

type Option func(*Driver)

func WithTracker(t *tracker.Tracker) Option {
	return func(d *Driver) { d.tracker = t }
}

// WithGraph renders g instead of a single compiled shader. The driver
// compiles g in New and owns it from then on.
func WithGraph(g *renderer.Graph) Option {
	return func(d *Driver) { d.graph = g }
}

func WithOnFrame(f func(FrameState)) Option {
	return func(d *Driver) {
		if f != nil {
			d.onFrame = append(d.onFrame, f)
		}
	}
}

// WithFormat sets the color format of intermediate targets and pipelines.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(d *Driver) { d.format = f }
}

// WithClock replaces the wall clock used for playback time.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSize sets the initial viewport.
func WithSize(width, height int) Option {
	return func(d *Driver) { d.width, d.height = width, height }
}

// Driver owns the parameter buffer and the graphs it renders. Like the
// graphs, it is driven from one goroutine.
type Driver struct {
	dev     graphics.Device
	format  gputypes.TextureFormat
	params  *uniforms.Buffer
	tracker *tracker.Tracker
	onFrame []func(FrameState)
	now     func() time.Time

	graph *renderer.Graph

	playlist *tracker.Playlist
	entries  []*renderer.Graph
	active   int
	// bars positions the playlist when no tracker is attached
	bars *beat.Clock

	width, height int

	playing bool
	anchor  time.Time
	elapsed time.Duration
	frame   uint32
}

// New binds the parameter buffer to dev and compiles the initial graph:
// the one given WithGraph, or the default shader. Device failures are
// returned here, before any frame runs.
func New(ctx context.Context, dev graphics.Device, opts ...Option) (*Driver, error) {
	if dev == nil {
		return nil, errors.New("driver: no graphics device")
	}
	d := &Driver{
		dev:    dev,
		format: gputypes.TextureFormatRGBA8Unorm,
		params: uniforms.New(),
		now:    time.Now,
		width:  1280,
		height: 720,
		active: -1,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.params.Bind(dev); err != nil {
		return nil, fmt.Errorf("failed to allocate parameter buffer: %w", err)
	}
	d.params.SetResolution(float32(d.width), float32(d.height))

	if d.graph != nil {
		if err := d.graph.Compile(ctx, dev, d.format, d.params, d.width, d.height); err != nil {
			d.params.Destroy()
			return nil, err
		}
		return d, nil
	}

	if res := d.Compile(ctx, shader.DefaultFragment(dev.Language()), "", 0); !res.OK {
		d.params.Destroy()
		return nil, fmt.Errorf("default shader failed to compile: %s", res.Error)
	}
	if d.graph == nil {
		d.params.Destroy()
		return nil, errors.New("driver: failed to build default graph")
	}
	return d, nil
}

// Params exposes the parameter buffer.
func (d *Driver) Params() *uniforms.Buffer { return d.params }

func (d *Driver) Tracker() *tracker.Tracker { return d.tracker }

// Graph is the graph rendered when no playlist is set.
func (d *Driver) Graph() *renderer.Graph { return d.graph }

func (d *Driver) Size() (int, int) { return d.width, d.height }

// Compile builds a one-scene graph from fragment and swaps it in. vertex
// may be source text, the name of a built-in vertex shader, or empty for
// the fullscreen quad. On failure the previous graph keeps rendering.
func (d *Driver) Compile(ctx context.Context, fragment, vertex string, vertexCount int) shader.CompileResult {
	g, res, err := d.buildScene(ctx, "main", fragment, vertex, vertexCount)
	if err != nil {
		return shader.ResultFrom(err)
	}
	if !res.OK {
		g.Destroy()
		logging.With("driver").Warn("shader compile failed", "error", res.Error)
		return res
	}
	if d.graph != nil {
		d.graph.Destroy()
	}
	d.graph = g
	return res
}

// buildScene compiles a single-scene graph and waits for its pipeline.
func (d *Driver) buildScene(ctx context.Context, name, fragment, vertex string, vertexCount int) (*renderer.Graph, shader.CompileResult, error) {
	var opts []renderer.SceneOption
	if vertex != "" {
		if src, n, ok := shader.Builtin(vertex, d.dev.Language()); ok {
			vertex, vertexCount = src, n
		}
		opts = append(opts, renderer.WithVertex(vertex, vertexCount))
	}

	g := renderer.New().Scene(name, fragment, opts...)
	if err := g.Compile(ctx, d.dev, d.format, d.params, d.width, d.height); err != nil {
		g.Destroy()
		return nil, shader.CompileResult{}, err
	}
	if err := g.Wait(ctx); err != nil {
		g.Destroy()
		return nil, shader.CompileResult{}, err
	}
	res := shader.CompileResult{OK: true}
	for _, r := range g.Results() {
		if !r.Result.OK {
			res = r.Result
		}
	}
	return g, res, nil
}

// SetPlaylist compiles one graph per entry. The entry playing is chosen
// each frame from the bar count, looping over the playlist's length.
// Entries that fail to compile stay in the list and render nothing; their
// results are returned in entry order.
func (d *Driver) SetPlaylist(ctx context.Context, pl *tracker.Playlist) ([]shader.CompileResult, error) {
	var graphs []*renderer.Graph
	var results []shader.CompileResult
	for _, e := range pl.Entries() {
		g, res, err := d.buildScene(ctx, e.Name, e.Fragment, e.Vertex, e.VertexCount)
		if err != nil {
			for _, g := range graphs {
				g.Destroy()
			}
			return nil, fmt.Errorf("playlist entry %q: %w", e.Name, err)
		}
		if !res.OK {
			logging.With("driver").Warn("playlist entry failed to compile", "entry", e.Name, "error", res.Error)
		}
		graphs = append(graphs, g)
		results = append(results, res)
	}

	d.clearPlaylist()
	d.playlist = pl
	d.entries = graphs
	d.active = -1
	if d.tracker == nil {
		d.bars = beat.NewClock(beat.DefaultBPM, beat.DefaultBeatsPerBar)
	}
	return results, nil
}

func (d *Driver) clearPlaylist() {
	for _, g := range d.entries {
		g.Destroy()
	}
	d.playlist, d.entries, d.bars = nil, nil, nil
}

// Play starts or resumes playback.
func (d *Driver) Play() {
	if d.playing {
		return
	}
	d.playing = true
	d.anchor = d.now()
	if d.tracker != nil {
		d.tracker.Play()
	}
}

// Pause freezes playback time.
func (d *Driver) Pause() {
	if !d.playing {
		return
	}
	d.playing = false
	d.elapsed += d.now().Sub(d.anchor)
	if d.tracker != nil {
		d.tracker.Pause()
	}
}

// Stop rewinds to frame 0.
func (d *Driver) Stop() {
	d.playing = false
	d.elapsed = 0
	d.frame = 0
	d.active = -1
	if d.tracker != nil {
		d.tracker.Stop()
	}
	if d.bars != nil {
		d.bars.Reset()
	}
}

func (d *Driver) IsPlaying() bool { return d.playing }

// Time is the playback position in seconds.
func (d *Driver) Time() float64 {
	t := d.elapsed
	if d.playing {
		t += d.now().Sub(d.anchor)
	}
	return t.Seconds()
}

// Resize updates the resolution uniform and every graph's targets.
func (d *Driver) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	d.width, d.height = width, height
	d.params.SetResolution(float32(width), float32(height))

	var errs []error
	if d.graph != nil {
		errs = append(errs, d.graph.Resize(d.params, width, height))
	}
	for _, g := range d.entries {
		errs = append(errs, g.Resize(d.params, width, height))
	}
	return errors.Join(errs...)
}

// SetPointer sets the pointer position in framebuffer pixels.
func (d *Driver) SetPointer(x, y float32) {
	d.params.SetPointer(x, y)
}

// Destroy releases every graph and the parameter buffer. The device is
// left to its owner.
func (d *Driver) Destroy() {
	d.Pause()
	d.clearPlaylist()
	if d.graph != nil {
		d.graph.Destroy()
		d.graph = nil
	}
	d.params.Destroy()
}
