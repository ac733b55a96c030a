package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/tracker"
)

var fragment = shader.DefaultFragment(graphics.WGSL)

func newService(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	shaders := map[string]any{
		"s1": map[string]any{
			"id":                 "s1",
			"name":               "plasma",
			"vertexShaderCode":   "",
			"fragmentShaderCode": fragment,
			"bpm":                128,
			"createdAt":          "0001-01-01T00:00:00",
			"updatedAt":          "2026-02-23T15:11:45.123+01:00",
			"trackerDataJson": `{"rowsPerBeat": 8, "tracks": {"zoom": [
				{"row": 0, "value": 1, "interpolation": "smooth"},
				{"row": 32, "value": 3}]}}`,
		},
		"s2": map[string]any{
			"id":                 "s2",
			"name":               "plasma",
			"vertexShaderCode":   "cube",
			"fragmentShaderCode": fragment,
		},
		"fx": map[string]any{
			"id":                 "fx",
			"name":               "blit",
			"fragmentShaderCode": shader.BlitFragment(graphics.WGSL),
		},
	}
	scenes := map[string]any{
		"demo": map[string]any{
			"id":   "demo",
			"name": "demo",
			"shaders": []any{
				map[string]any{"shaderId": "fx", "type": "PostFx", "order": 2},
				map[string]any{"shaderId": "s2", "type": 0, "order": 1},
				map[string]any{"shaderId": "s1", "type": "PixelShader", "order": 0},
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/shaders/public", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{shaders["s1"], shaders["fx"]})
	})
	mux.HandleFunc("GET /api/shaders/{id}", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "shaderforge") {
			t.Errorf("User-Agent = %q", ua)
		}
		s, ok := shaders[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(s)
	})
	mux.HandleFunc("GET /api/scenes/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := scenes[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(s)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestShader(t *testing.T) {
	var hits int32
	srv := newService(t, &hits)
	c := NewClient(srv.URL + "/")

	sh, err := c.Shader(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sh.Name != "plasma" || sh.BPM != 128 || sh.FragmentShaderCode != fragment {
		t.Errorf("shader = %+v", sh)
	}
	if !sh.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", sh.CreatedAt)
	}
	if sh.UpdatedAt.Year() != 2026 {
		t.Errorf("UpdatedAt = %v", sh.UpdatedAt)
	}

	_, err = c.Shader(context.Background(), "nope")
	if k := ftag.Get(err); k != ftag.NotFound {
		t.Errorf("missing shader kind = %q (%v)", k, err)
	}
	_, err = c.Shader(context.Background(), "../etc")
	if k := ftag.Get(err); k != ftag.InvalidArgument {
		t.Errorf("bad id kind = %q (%v)", k, err)
	}
}

func TestPublicShaders(t *testing.T) {
	var hits int32
	srv := newService(t, &hits)
	list, err := NewClient(srv.URL).PublicShaders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[1].ID != "fx" {
		t.Errorf("list = %+v", list)
	}
}

func TestCache(t *testing.T) {
	var hits int32
	srv := newService(t, &hits)
	dir := t.TempDir()
	c := NewClient(srv.URL, WithCache(dir))

	for i := 0; i < 3; i++ {
		if _, err := c.Shader(context.Background(), "s2"); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "shaders", "s2.json")); err != nil {
		t.Errorf("cache file: %v", err)
	}
}

func TestProject(t *testing.T) {
	var hits int32
	srv := newService(t, &hits)
	p, err := NewClient(srv.URL).Project(context.Background(), "demo")
	if err != nil {
		t.Fatal(err)
	}

	if len(p.Scenes) != 2 || p.Scenes[0].Name != "plasma" || p.Scenes[1].Name != "plasma#2" {
		t.Fatalf("scenes = %+v", p.Scenes)
	}
	if p.Scenes[1].Vertex != "cube" || p.Scenes[1].VertexCount != shader.CubeVertexCount {
		t.Errorf("cube scene = %+v", p.Scenes[1])
	}
	if len(p.Effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(p.Effects))
	}
	if p.BPM != 128 || p.RowsPerBeat != 8 {
		t.Errorf("timeline = %+v", p.Config)
	}

	tr := p.Tracker()
	if got := tr.ValueAt("zoom", 16); got != 2 {
		t.Errorf("zoom at 16 = %v, want 2", got)
	}
	if k := p.Tracks["zoom"][0].Interp; k != tracker.Smooth {
		t.Errorf("interp = %v, want smooth", k)
	}
	if g := p.Graph(graphics.WGSL); len(g.SceneNames()) != 2 || g.EffectCount() != 1 {
		t.Errorf("graph = %v scenes, %d effects", g.SceneNames(), g.EffectCount())
	}

	_, err = NewClient(srv.URL).Project(context.Background(), "missing")
	if k := ftag.Get(err); k != ftag.NotFound {
		t.Errorf("missing scene kind = %q", k)
	}
}

func TestProjectFromSceneErrors(t *testing.T) {
	scene := &Scene{Name: "s", Shaders: []SceneShaderEntry{{ShaderID: "x"}}}
	if _, err := ProjectFromScene(scene, nil); ftag.Get(err) != ftag.NotFound {
		t.Errorf("unknown shader: %v", err)
	}

	fxOnly := &Scene{Name: "fx", Shaders: []SceneShaderEntry{{ShaderID: "x", Type: PostFx}}}
	if _, err := ProjectFromScene(fxOnly, map[string]*Shader{"x": {ID: "x"}}); err == nil {
		t.Error("scene with only effects should not validate")
	}

	bad := map[string]*Shader{"x": {ID: "x", Name: "x", FragmentShaderCode: fragment, TrackerDataJSON: "{"}}
	if _, err := ProjectFromScene(scene, bad); ftag.Get(err) != ftag.InvalidArgument {
		t.Errorf("bad tracker json: %v", err)
	}
}

func TestPlaylistData(t *testing.T) {
	sh := &Shader{
		ID:                 "x",
		Name:               "x",
		FragmentShaderCode: fragment,
		PlaylistDataJSON: `[
			{"fragmentShader": "a", "durationBars": 2},
			{"name": "b", "fragmentShader": "b", "vertexShader": "sphere", "durationBars": 4}
		]`,
	}
	scene := &Scene{Name: "s", Shaders: []SceneShaderEntry{{ShaderID: "x"}}}
	p, err := ProjectFromScene(scene, map[string]*Shader{"x": sh})
	if err != nil {
		t.Fatal(err)
	}
	pl := p.Playlist()
	if pl.TotalBars() != 6 {
		t.Fatalf("bars = %d, want 6", pl.TotalBars())
	}
	es := pl.Entries()
	if es[0].Name != "entry0" || es[1].Vertex != "sphere" || es[1].VertexCount != shader.SphereVertexCount {
		t.Errorf("entries = %+v", es)
	}
}

func TestShaderTypeJSON(t *testing.T) {
	var e SceneShaderEntry
	if err := json.Unmarshal([]byte(`{"shaderId":"a","type":1}`), &e); err != nil || e.Type != PostFx {
		t.Errorf("numeric type: %v, %v", e.Type, err)
	}
	if err := json.Unmarshal([]byte(`{"type":"Compute"}`), &e); err == nil {
		t.Error("unknown type accepted")
	}
	b, _ := json.Marshal(SceneShaderEntry{ShaderID: "a", Type: PostFx})
	if !strings.Contains(string(b), `"type":"PostFx"`) {
		t.Errorf("marshal = %s", b)
	}
}
