package renderer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/graphics/gputest"
	"github.com/richinsley/shaderforge/uniforms"
)

const testFormat = gputypes.TextureFormatRGBA8Unorm

func setup(t *testing.T) (*gputest.Device, *uniforms.Buffer) {
	t.Helper()
	dev := gputest.New()
	params := uniforms.New()
	if err := params.Bind(dev); err != nil {
		t.Fatal(err)
	}
	return dev, params
}

func compile(t *testing.T, g *Graph, dev *gputest.Device, params *uniforms.Buffer, w, h int) {
	t.Helper()
	if err := g.Compile(context.Background(), dev, testFormat, params, w, h); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func input(dc graphics.DrawCall, ch int) graphics.Texture {
	return dc.BindSet.(*gputest.BindSet).Desc.Channels[ch].Texture
}

func label(tex graphics.Texture) string {
	if t, ok := tex.(*gputest.Texture); ok {
		return t.Label
	}
	return ""
}

func TestEmptyGraphDrawsNothing(t *testing.T) {
	dev, params := setup(t)
	g := New()
	compile(t, g, dev, params, 64, 64)

	rec := &gputest.Recorder{}
	st := g.Render(rec, dev.Present(64, 64), params)
	if st.Draws != 0 || len(rec.Draws) != 0 {
		t.Fatalf("empty graph drew %d passes", len(rec.Draws))
	}
}

func TestScenesThenBlit(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "frag a").Scene("b", "frag b")
	compile(t, g, dev, params, 320, 240)

	present := dev.Present(320, 240)
	rec := &gputest.Recorder{}
	st := g.Render(rec, present, params)
	if st.Draws != 3 || len(rec.Draws) != 3 {
		t.Fatalf("got %d draws, want 3", len(rec.Draws))
	}

	idA, _ := g.Lookup("a")
	idB, _ := g.Lookup("b")
	if rec.Draws[0].Target != g.Target(idA) || rec.Draws[1].Target != g.Target(idB) {
		t.Error("scenes must draw into their own targets in order")
	}
	last := rec.Draws[2]
	if last.Target != present {
		t.Fatalf("last draw targets %v, want present", last.Target)
	}
	if input(last, 0) != g.Target(idB) {
		t.Errorf("blit reads %v, want target of last scene", input(last, 0))
	}
	if tex := g.Target(idA).(*gputest.Texture); tex.W != 320 || tex.H != 240 {
		t.Errorf("target size %dx%d", tex.W, tex.H)
	}
	for _, dc := range rec.Draws {
		if dc.Clear != graphics.DefaultClear {
			t.Errorf("%s clears to %+v", dc.Label, dc.Clear)
		}
	}
}

func TestEffectChainPingPong(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("main", "frag").Effect("fx0").Effect("fx1").Effect("fx2")
	compile(t, g, dev, params, 32, 32)

	present := dev.Present(32, 32)
	for frame := 0; frame < 2; frame++ {
		rec := &gputest.Recorder{}
		g.Render(rec, present, params)
		if len(rec.Draws) != 4 {
			t.Fatalf("got %d draws, want 4", len(rec.Draws))
		}

		id, _ := g.Lookup("main")
		if input(rec.Draws[1], 0) != g.Target(id) {
			t.Error("first effect must read the last scene")
		}
		for i, dc := range rec.Draws {
			if i > 0 && dc.Target == input(dc, 0) {
				t.Errorf("draw %d reads and writes %v", i, dc.Target)
			}
			if i > 1 && input(dc, 0) != rec.Draws[i-1].Target {
				t.Errorf("effect %d does not read the previous layer", i-1)
			}
		}
		if !strings.HasPrefix(label(rec.Draws[1].Target), "sf:target:p") {
			t.Errorf("middle effect writes %v", rec.Draws[1].Target)
		}
		if rec.Draws[3].Target != present {
			t.Error("last effect must draw to present")
		}
	}

	// bind sets are cached per input, not rebuilt every frame
	before := len(dev.BindSets())
	g.Render(&gputest.Recorder{}, present, params)
	if after := len(dev.BindSets()); after != before {
		t.Errorf("render created %d bind sets", after-before)
	}
}

func TestEffectWithoutScenesReadsFallback(t *testing.T) {
	dev, params := setup(t)
	g := New().Effect("fx")
	compile(t, g, dev, params, 8, 8)

	rec := &gputest.Recorder{}
	g.Render(rec, dev.Present(8, 8), params)
	if len(rec.Draws) != 1 {
		t.Fatalf("got %d draws", len(rec.Draws))
	}
	if label(input(rec.Draws[0], 0)) != "sf:fallback" {
		t.Errorf("effect reads %v", input(rec.Draws[0], 0))
	}
}

func TestResize(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "frag").Effect("fx")
	if err := g.Resize(params, 100, 50); err != nil {
		t.Fatal(err)
	}
	compile(t, g, dev, params, 0, 0)
	id, _ := g.Lookup("a")
	old := g.Target(id).(*gputest.Texture)
	if old.W != 100 || old.H != 50 {
		t.Fatalf("compiled at %dx%d, want the resized 100x50", old.W, old.H)
	}

	if err := g.Resize(params, 200, 0); err != nil {
		t.Fatal(err)
	}
	if !old.Destroyed {
		t.Error("old target not destroyed")
	}
	cur := g.Target(id).(*gputest.Texture)
	if cur.W != 200 || cur.H != 1 {
		t.Errorf("resized target %dx%d, want 200x1", cur.W, cur.H)
	}
	for _, tex := range dev.Textures() {
		if !tex.Destroyed && tex.Label != "sf:fallback" && (tex.W != 200 || tex.H != 1) {
			t.Errorf("live target %s at %dx%d", tex.Label, tex.W, tex.H)
		}
	}

	rec := &gputest.Recorder{}
	g.Render(rec, dev.Present(200, 1), params)
	if input(rec.Draws[1], 0) != cur {
		t.Error("effect still bound to the old target")
	}
}

func TestDuplicateSceneKeepsSlot(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "first").Scene("b", "second").Scene("a", "replaced")
	if got := g.SceneNames(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("scenes %v", got)
	}
	compile(t, g, dev, params, 4, 4)

	rec := &gputest.Recorder{}
	g.Render(rec, dev.Present(4, 4), params)
	if len(rec.Draws) != 3 {
		t.Fatalf("got %d draws", len(rec.Draws))
	}
	pl := rec.Draws[0].Pipeline.(*gputest.Pipeline)
	if !strings.Contains(pl.Desc.Fragment.Code, "replaced") || strings.Contains(pl.Desc.Fragment.Code, "first") {
		t.Error("first slot does not use the replacing definition")
	}
}

func TestAsyncPassesSkippedUntilReady(t *testing.T) {
	dev, params := setup(t)
	dev.Async = true
	g := New().Scene("a", "frag")
	compile(t, g, dev, params, 4, 4)

	present := dev.Present(4, 4)
	st := g.Render(&gputest.Recorder{}, present, params)
	if st.Draws != 0 || st.Skipped != 2 {
		t.Fatalf("stats before ready %+v", st)
	}
	if r := g.Results(); len(r) != 1 || r[0].Ready || !r[0].Result.OK {
		t.Errorf("pending results %+v", r)
	}

	dev.ResolvePending()
	rec := &gputest.Recorder{}
	st = g.Render(rec, present, params)
	if st.Draws != 2 || st.Skipped != 0 {
		t.Fatalf("stats after ready %+v", st)
	}
}

func TestWait(t *testing.T) {
	dev, params := setup(t)
	dev.Async = true
	g := New().Scene("a", "frag")
	compile(t, g, dev, params, 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait on cancelled context = %v", err)
	}

	dev.ResolvePending()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.Results()[0].Ready {
		t.Error("pass not ready after Wait")
	}
}

func TestCompileErrors(t *testing.T) {
	dev, params := setup(t)
	g := New()
	if err := g.Compile(context.Background(), dev, testFormat, uniforms.New(), 4, 4); !errors.Is(err, uniforms.ErrNotBound) {
		t.Fatalf("unbound params = %v", err)
	}
	compile(t, g, dev, params, 4, 4)
	if err := g.Compile(context.Background(), dev, testFormat, params, 4, 4); !errors.Is(err, ErrAlreadyCompiled) {
		t.Fatalf("second Compile = %v", err)
	}

	g.Scene("late", "frag")
	if len(g.SceneNames()) != 0 {
		t.Error("Scene after Compile must be ignored")
	}

	g.Destroy()
	if err := g.Compile(context.Background(), dev, testFormat, params, 4, 4); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("Compile after Destroy = %v", err)
	}
}

func TestTextureFailureReleasesEverything(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "frag")
	dev.FailTextures = true
	if err := g.Compile(context.Background(), dev, testFormat, params, 4, 4); err == nil {
		t.Fatal("expected allocation error")
	}
	if dev.LiveTextures() != 0 {
		t.Errorf("%d textures leaked", dev.LiveTextures())
	}

	dev.FailTextures = false
	compile(t, g, dev, params, 4, 4)
}

func TestDestroy(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "frag").Scene("b", "frag").Effect("fx")
	compile(t, g, dev, params, 16, 16)
	g.Render(&gputest.Recorder{}, dev.Present(16, 16), params)

	g.Destroy()
	g.Destroy()
	if n := dev.LiveTextures(); n != 0 {
		t.Errorf("%d textures alive after Destroy", n)
	}
	for _, p := range dev.Pipelines() {
		if !p.Destroyed {
			t.Errorf("pipeline %s alive after Destroy", p.Desc.Label)
		}
	}
	for _, bs := range dev.BindSets() {
		if !bs.Destroyed {
			t.Errorf("bind set %s alive after Destroy", bs.Desc.Label)
		}
	}

	rec := &gputest.Recorder{}
	if st := g.Render(rec, dev.Present(16, 16), params); st.Draws != 0 || len(rec.Draws) != 0 {
		t.Error("Render after Destroy must draw nothing")
	}
}

func TestDestroyReleasesLateCompiles(t *testing.T) {
	dev, params := setup(t)
	dev.Async = true
	g := New().Scene("a", "frag")
	compile(t, g, dev, params, 4, 4)

	g.Destroy()
	dev.ResolvePending()
	pls := dev.Pipelines()
	if len(pls) != 1 || !pls[0].Destroyed {
		t.Fatalf("late pipeline not released: %+v", pls)
	}
}

func TestChannelResolution(t *testing.T) {
	dev, params := setup(t)
	g := New().
		Scene("a", "frag",
			WithChannel(0, "a"),
			WithChannel(1, "missing"),
			WithChannel(2, "b"),
			WithChannel(3, PreviousLayer),
			WithChannel(9, "b")).
		Scene("b", "frag", WithChannel(0, "a"))
	compile(t, g, dev, params, 4, 4)

	rec := &gputest.Recorder{}
	g.Render(rec, dev.Present(4, 4), params)
	idA, _ := g.Lookup("a")
	idB, _ := g.Lookup("b")

	a := rec.Draws[0]
	for _, ch := range []int{0, 1, 3} {
		if label(input(a, ch)) != "sf:fallback" {
			t.Errorf("channel %d bound to %v, want fallback", ch, input(a, ch))
		}
	}
	if input(a, 2) != g.Target(idB) {
		t.Error("channel 2 must read scene b")
	}
	if input(rec.Draws[1], 0) != g.Target(idA) {
		t.Error("scene b must read scene a")
	}
	if a.BindSet.(*gputest.BindSet).Desc.Uniforms != params.Handle() {
		t.Error("bind set does not carry the parameter buffer")
	}
}

func TestCompileFailureIsolated(t *testing.T) {
	dev, params := setup(t)
	dev.FailPipeline = func(desc graphics.PipelineDescriptor) error {
		if desc.Label != "sf:pass:bad" {
			return nil
		}
		return &graphics.CompileError{Label: desc.Label, Diagnostics: []graphics.Diagnostic{
			{Severity: graphics.SeverityError, Stage: graphics.StageFragment, Line: 2, Message: "boom"},
		}}
	}
	g := New().Scene("bad", "broken").Scene("good", "frag")
	compile(t, g, dev, params, 4, 4)

	rec := &gputest.Recorder{}
	st := g.Render(rec, dev.Present(4, 4), params)
	if st.Draws != 2 || st.Skipped != 1 {
		t.Fatalf("stats %+v", st)
	}

	res := g.Results()
	if res[0].Result.OK || res[0].Ready || res[0].Result.Error != "fragment line 2: boom" {
		t.Errorf("bad pass result %+v", res[0])
	}
	if !res[1].Result.OK || !res[1].Ready {
		t.Errorf("good pass result %+v", res[1])
	}
	if err := g.Err(); err == nil || !strings.Contains(err.Error(), "bad: fragment line 2: boom") {
		t.Errorf("Err() = %v", err)
	}
}

func TestNewParamsRebindsPasses(t *testing.T) {
	dev, params := setup(t)
	g := New().Scene("a", "frag")
	compile(t, g, dev, params, 4, 4)

	other := uniforms.New()
	if err := other.Bind(dev); err != nil {
		t.Fatal(err)
	}
	rec := &gputest.Recorder{}
	g.Render(rec, dev.Present(4, 4), other)
	for _, dc := range rec.Draws {
		if dc.BindSet.(*gputest.BindSet).Desc.Uniforms != other.Handle() {
			t.Errorf("%s still bound to the old parameter buffer", dc.Label)
		}
	}
}
