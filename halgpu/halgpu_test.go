package halgpu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/renderer"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/uniforms"
)

func newNoop(opts ...Option) *Device {
	return New(&noop.Device{}, &noop.Queue{}, opts...)
}

func pipelineDesc(t *testing.T, d *Device, fragment string) graphics.PipelineDescriptor {
	t.Helper()
	lay, err := d.CreateBindLayout()
	if err != nil {
		t.Fatal(err)
	}
	return graphics.PipelineDescriptor{
		Label:    "sf:pass:test",
		Layout:   lay,
		Vertex:   shader.Assemble(graphics.WGSL, graphics.StageVertex, shader.FullscreenVertex(graphics.WGSL)),
		Fragment: shader.Assemble(graphics.WGSL, graphics.StageFragment, fragment),
		Format:   gputypes.TextureFormatRGBA8Unorm,
	}
}

func TestPitch(t *testing.T) {
	tests := []struct{ w, want int }{
		{1, 256},
		{64, 256},
		{65, 512},
		{320, 1280},
	}
	for _, tt := range tests {
		if got := pitch(tt.w); got != tt.want {
			t.Errorf("pitch(%d) = %d, want %d", tt.w, got, tt.want)
		}
	}
}

func TestSwizzle(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	swizzle(pix)
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8}
	for i := range pix {
		if pix[i] != want[i] {
			t.Fatalf("swizzle = %v, want %v", pix, want)
		}
	}
}

func TestReadTextureIsTightlyPacked(t *testing.T) {
	d := newNoop()
	tex, err := d.Offscreen(65, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyTexture(tex)

	pix, err := d.ReadTexture(tex)
	if err != nil {
		t.Fatal(err)
	}
	if len(pix) != 65*3*4 {
		t.Fatalf("read %d bytes, want %d", len(pix), 65*3*4)
	}
}

func TestUniformWriteBounds(t *testing.T) {
	d := newNoop()
	buf, err := d.CreateUniformBuffer(uniforms.Size)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(buf)

	if err := d.WriteBuffer(buf, make([]byte, uniforms.Size)); err != nil {
		t.Errorf("full write: %v", err)
	}
	if err := d.WriteBuffer(buf, make([]byte, uniforms.Size+1)); err == nil {
		t.Error("oversized write accepted")
	}
}

func TestCreatePipelineReportsUserLines(t *testing.T) {
	d := newNoop()
	broken := "@fragment\nfn main() -> @location(0) vec4f {\n  let x = ;\n  return vec4f(1.0);\n}\n"
	_, err := d.CreatePipeline(pipelineDesc(t, d, broken))

	var ce *graphics.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *graphics.CompileError", err)
	}
	if ce.Label != "sf:pass:test" {
		t.Errorf("label = %q", ce.Label)
	}
	if len(ce.Diagnostics) == 0 || ce.Diagnostics[0].Line != 3 {
		t.Errorf("diagnostics = %v, want an error on line 3", ce.Diagnostics)
	}
}

func TestCreatePipelineRejectsGLSL(t *testing.T) {
	d := newNoop()
	desc := pipelineDesc(t, d, shader.DefaultFragment(graphics.WGSL))
	desc.Fragment.Language = graphics.GLSL
	if _, err := d.CreatePipeline(desc); err == nil {
		t.Fatal("GLSL stage accepted")
	}
}

func TestAsyncPipeline(t *testing.T) {
	d := newNoop(WithAsync())
	f := d.CreatePipelineAsync(pipelineDesc(t, d, shader.DefaultFragment(graphics.WGSL)))
	p, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("nil pipeline")
	}
	d.DestroyPipeline(p)
}

func TestDestroyedDevice(t *testing.T) {
	d := newNoop()
	d.Destroy()
	d.Destroy()

	if _, err := d.NewEncoder(); !errors.Is(err, graphics.ErrDeviceLost) {
		t.Errorf("NewEncoder after Destroy: %v", err)
	}
	if _, err := d.CreateTexture(graphics.TextureDescriptor{Width: 1, Height: 1}); !errors.Is(err, graphics.ErrDeviceLost) {
		t.Errorf("CreateTexture after Destroy: %v", err)
	}
}

// gatedDevice holds shader module creation until gate closes and counts
// pipeline calls that reach it after Destroy.
type gatedDevice struct {
	hal.Device
	once      sync.Once
	entered   chan struct{}
	gate      chan struct{}
	destroyed atomic.Bool
	late      atomic.Int32
}

func (g *gatedDevice) touch() {
	if g.destroyed.Load() {
		g.late.Add(1)
	}
}

func (g *gatedDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	g.touch()
	return g.Device.CreateShaderModule(desc)
}

func (g *gatedDevice) DestroyShaderModule(m hal.ShaderModule) {
	g.touch()
	g.Device.DestroyShaderModule(m)
}

func (g *gatedDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	g.touch()
	return g.Device.CreateRenderPipeline(desc)
}

func (g *gatedDevice) DestroyRenderPipeline(p hal.RenderPipeline) {
	g.touch()
	g.Device.DestroyRenderPipeline(p)
}

func (g *gatedDevice) Destroy() {
	g.destroyed.Store(true)
	g.Device.Destroy()
}

func TestDestroyWaitsForInflightCompile(t *testing.T) {
	g := &gatedDevice{Device: &noop.Device{}, entered: make(chan struct{}), gate: make(chan struct{})}
	d := New(g, &noop.Queue{}, WithAsync())

	f := d.CreatePipelineAsync(pipelineDesc(t, d, shader.DefaultFragment(graphics.WGSL)))
	<-g.entered
	f.Discard(d.DestroyPipeline)

	done := make(chan struct{})
	go func() {
		d.Destroy()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Destroy returned while a compile was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(g.gate)
	<-done
	<-f.Done()

	if n := g.late.Load(); n != 0 {
		t.Errorf("%d pipeline calls reached the HAL device after Destroy", n)
	}
	// Late releases from the frame thread are no-ops too.
	if p, _, _ := f.Poll(); p != nil {
		d.DestroyPipeline(p)
		if n := g.late.Load(); n != 0 {
			t.Errorf("DestroyPipeline after Destroy touched the device %d times", n)
		}
	}
}

func TestCompileAfterDestroy(t *testing.T) {
	d := newNoop(WithAsync())
	desc := pipelineDesc(t, d, shader.DefaultFragment(graphics.WGSL))
	d.Destroy()
	if _, err := d.CreatePipelineAsync(desc).Wait(context.Background()); !errors.Is(err, graphics.ErrDeviceLost) {
		t.Errorf("compile after Destroy: %v", err)
	}
}

func TestGraphRendersThroughHAL(t *testing.T) {
	d := newNoop(WithAsync())
	params := uniforms.New()
	if err := params.Bind(d); err != nil {
		t.Fatal(err)
	}

	g := renderer.New().
		Scene("main", shader.DefaultFragment(graphics.WGSL)).
		Effect(shader.BlitFragment(graphics.WGSL))
	ctx := context.Background()
	if err := g.Compile(ctx, d, gputypes.TextureFormatRGBA8Unorm, params, 32, 16); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Err(); err != nil {
		t.Fatalf("compile errors: %v", err)
	}

	present, err := d.Offscreen(32, 16)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := d.NewEncoder()
	if err != nil {
		t.Fatal(err)
	}
	if err := params.Upload(); err != nil {
		t.Fatal(err)
	}
	st := g.Render(enc, present, params)
	if st.Draws != 2 || st.Skipped != 0 {
		t.Fatalf("stats = %+v, want 2 draws", st)
	}
	cb, err := enc.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(cb); err != nil {
		t.Fatal(err)
	}
	if len(d.inflight) != 0 {
		t.Errorf("%d command buffers left in flight", len(d.inflight))
	}

	g.Destroy()
	d.DestroyTexture(present)
	params.Destroy()
	d.Destroy()
}
