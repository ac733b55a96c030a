package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/graphics/gputest"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/tracker"
	"github.com/richinsley/shaderforge/uniforms"
)

const demo = `
bpm: 140
rows_per_beat: 8
rows: 256
tracks:
  zoom:
    - {row: 16, value: 2}
    - {row: 0, value: 1, interp: step}
scenes:
  - name: background
    fragment_file: shaders/bg.wgsl
  - name: cube
    fragment_file: shaders/cube.wgsl
    vertex: cube
    channels:
      0: background
effects:
  - fragment_file: shaders/post.wgsl
playlist:
  - name: intro
    fragment_file: shaders/bg.wgsl
    bars: 4
  - name: drop
    fragment_file: shaders/cube.wgsl
    vertex: shaders/custom.vert.wgsl
    vertex_count: 6
    bars: 8
`

func writeProject(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"shaders/bg.wgsl":          shader.DefaultFragment(graphics.WGSL),
		"shaders/cube.wgsl":        shader.DefaultFragment(graphics.WGSL),
		"shaders/post.wgsl":        shader.BlitFragment(graphics.WGSL),
		"shaders/custom.vert.wgsl": shader.FullscreenVertex(graphics.WGSL),
		"demo.yaml":                body,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "demo.yaml")
}

func TestLoad(t *testing.T) {
	p, err := Load(writeProject(t, demo))
	if err != nil {
		t.Fatal(err)
	}

	if p.BPM != 140 || p.RowsPerBeat != 8 || p.Rows != 256 {
		t.Errorf("timeline = %+v", p.Config)
	}
	if len(p.Scenes) != 2 || p.Scenes[1].Channels[0] != "background" {
		t.Fatalf("scenes = %+v", p.Scenes)
	}
	if p.Scenes[0].Fragment != shader.DefaultFragment(graphics.WGSL) || p.Scenes[0].FragmentFile != "" {
		t.Error("fragment_file was not inlined")
	}
	if p.Scenes[1].Vertex != "cube" {
		t.Errorf("built-in vertex = %q, want name kept", p.Scenes[1].Vertex)
	}
	if p.Sequence[1].Vertex != shader.FullscreenVertex(graphics.WGSL) {
		t.Error("vertex file was not inlined")
	}

	tr := p.Tracker()
	if tr.Config().BeatsPerBar != 4 {
		t.Errorf("beats per bar = %d, want default 4", tr.Config().BeatsPerBar)
	}
	if got := tr.ValueAt("zoom", 8); got != 1 {
		t.Errorf("zoom at 8 = %v, want 1 (step)", got)
	}
	if got := tr.ValueAt("zoom", 20); got != 2 {
		t.Errorf("zoom at 20 = %v, want 2", got)
	}

	pl := p.Playlist()
	if pl.Len() != 2 || pl.TotalBars() != 12 {
		t.Fatalf("playlist = %d entries, %d bars", pl.Len(), pl.TotalBars())
	}
	if e, _, _ := pl.Resolve(5); e.Name != "drop" || e.VertexCount != 6 {
		t.Errorf("bar 5 = %+v", e)
	}
}

func TestGraphCompiles(t *testing.T) {
	p, err := Load(writeProject(t, demo))
	if err != nil {
		t.Fatal(err)
	}
	g := p.Graph(graphics.WGSL)
	if names := g.SceneNames(); len(names) != 2 || names[0] != "background" || names[1] != "cube" {
		t.Fatalf("scenes = %v", names)
	}
	if g.EffectCount() != 1 {
		t.Fatalf("effects = %d, want 1", g.EffectCount())
	}

	dev := gputest.New()
	params := uniforms.New()
	if err := params.Bind(dev); err != nil {
		t.Fatal(err)
	}
	if err := g.Compile(context.Background(), dev, gputypes.TextureFormatRGBA8Unorm, params, 64, 32); err != nil {
		t.Fatal(err)
	}
	defer g.Destroy()
	if err := g.Err(); err != nil {
		t.Fatalf("compile: %v", err)
	}
}

func TestParseInline(t *testing.T) {
	src := `
scenes:
  - name: main
    fragment: |
      @fragment
      fn main() -> @location(0) vec4f { return vec4f(1.0); }
`
	p, err := Parse([]byte(src), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Scenes[0].Fragment, "vec4f(1.0)") {
		t.Errorf("fragment = %q", p.Scenes[0].Fragment)
	}
	if p.Playlist() != nil {
		t.Error("Playlist should be nil without entries")
	}
	if tr := p.Tracker(); tr.Config().BPM != 120 {
		t.Errorf("bpm = %v, want default", tr.Config().BPM)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"empty", "bpm: 90\n", "no scenes"},
		{"duplicate", `
scenes:
  - {name: a, fragment: x}
  - {name: a, fragment: y}
`, "duplicate scene name"},
		{"slot", `
scenes:
  - {name: a, fragment: x}
  - {name: b, fragment: y, channels: {4: a}}
`, "out of range"},
		{"unknown source", `
scenes:
  - {name: a, fragment: x, channels: {0: nope}}
`, "unknown scene"},
		{"no fragment", `
scenes:
  - {name: a}
`, "no fragment"},
		{"both fragments", `
scenes:
  - {name: a, fragment: x, fragment_file: y.wgsl}
`, "exclusive"},
		{"bars", `
playlist:
  - {name: a, fragment: x, bars: 0}
`, "bars must be positive"},
		{"nan row", `
scenes:
  - {name: a, fragment: x}
tracks:
  zoom: [{row: .nan, value: 1}]
`, "invalid row"},
		{"negative row", `
scenes:
  - {name: a, fragment: x}
tracks:
  zoom: [{row: -2, value: 1}]
`, "invalid row"},
		{"vertex count", `
scenes:
  - name: a
    fragment: x
    vertex: |
      @vertex
      fn main() {}
`, "vertex_count"},
		{"unknown key", `
scene:
  - {name: a, fragment: x}
`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), t.TempDir())
			if err == nil {
				t.Fatal("Parse succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
			if k := ftag.Get(err); k != ftag.InvalidArgument {
				t.Errorf("kind = %q, want %q", k, ftag.InvalidArgument)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load succeeded")
	}
	if k := ftag.Get(err); k != ftag.NotFound {
		t.Errorf("kind = %q, want %q", k, ftag.NotFound)
	}

	_, err = Parse([]byte("scenes:\n  - {name: a, fragment_file: missing.wgsl}\n"), t.TempDir())
	if k := ftag.Get(err); k != ftag.NotFound {
		t.Errorf("missing shader kind = %q, want %q", k, ftag.NotFound)
	}
}

func TestSaveReloads(t *testing.T) {
	p, err := Load(writeProject(t, demo))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "saved.yaml")
	if err := p.Save(out); err != nil {
		t.Fatal(err)
	}
	q, err := Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if q.BPM != 140 || len(q.Scenes) != 2 || len(q.Sequence) != 2 {
		t.Fatalf("reloaded = %+v", q)
	}
	if q.Sequence[1].Vertex != p.Sequence[1].Vertex {
		t.Error("inline vertex source did not survive a reload")
	}
	if k := q.Tracks["zoom"][1].Interp; k != tracker.Constant {
		t.Errorf("interp = %v, want step", k)
	}
}
