package halgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/richinsley/shaderforge/graphics"
)

// rowPitch is the buffer row alignment texture copies require.
const rowPitch = 256

type encoder struct {
	d     *Device
	draws []graphics.DrawCall
}

func (e *encoder) Draw(dc graphics.DrawCall) { e.draws = append(e.draws, dc) }

// Finish encodes one render pass per recorded draw.
func (e *encoder) Finish() (graphics.CommandBuffer, error) {
	enc, err := e.d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sf:frame"})
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("sf:frame"); err != nil {
		return nil, fmt.Errorf("failed to begin encoding: %w", err)
	}

	for _, dc := range e.draws {
		t, ok := dc.Target.(*texture)
		if !ok {
			enc.DiscardEncoding()
			return nil, fmt.Errorf("%s: target: %w", dc.Label, errForeign)
		}
		p, ok := dc.Pipeline.(*pipeline)
		if !ok {
			enc.DiscardEncoding()
			return nil, fmt.Errorf("%s: pipeline: %w", dc.Label, errForeign)
		}
		bs, ok := dc.BindSet.(*bindSet)
		if !ok {
			enc.DiscardEncoding()
			return nil, fmt.Errorf("%s: bind set: %w", dc.Label, errForeign)
		}

		var barriers []hal.TextureBarrier
		for _, in := range bs.inputs {
			barriers = transition(barriers, in, gputypes.TextureUsageTextureBinding)
		}
		barriers = transition(barriers, t, gputypes.TextureUsageRenderAttachment)
		if len(barriers) > 0 {
			enc.TransitionTextures(barriers)
		}

		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: dc.Label,
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       t.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: dc.Clear,
			}},
		})
		rp.SetPipeline(p.rp)
		rp.SetBindGroup(0, bs.group, nil)
		rp.Draw(uint32(dc.VertexCount), 1, 0, 0)
		rp.End()
	}

	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("failed to end encoding: %w", err)
	}
	return cb, nil
}

// transition appends a barrier when t is not already in the wanted state.
func transition(barriers []hal.TextureBarrier, t *texture, usage gputypes.TextureUsage) []hal.TextureBarrier {
	if t == nil || t.usage == usage {
		return barriers
	}
	for i := range barriers {
		if barriers[i].Texture == t.tex {
			barriers[i].Usage.NewUsage = usage
			t.usage = usage
			return barriers
		}
	}
	barriers = append(barriers, hal.TextureBarrier{
		Texture: t.tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	})
	t.usage = usage
	return barriers
}

func (d *Device) NewEncoder() (graphics.Encoder, error) {
	if d.destroyed.Load() {
		return nil, graphics.ErrDeviceLost
	}
	return &encoder{d: d}, nil
}

// Submit queues a finished frame and frees command buffers the GPU has
// completed.
func (d *Device) Submit(cb graphics.CommandBuffer) error {
	if d.destroyed.Load() {
		return graphics.ErrDeviceLost
	}
	cmd, ok := cb.(hal.CommandBuffer)
	if !ok {
		return fmt.Errorf("command buffer: %w", errForeign)
	}
	idx, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		return fmt.Errorf("submit failed: %w", err)
	}

	d.mu.Lock()
	d.inflight = append(d.inflight, submission{index: idx, cmd: cmd})
	d.mu.Unlock()
	d.reclaim(d.queue.PollCompleted())
	return nil
}

func (d *Device) reclaim(completed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keep := d.inflight[:0]
	for _, s := range d.inflight {
		if s.index <= completed {
			d.dev.FreeCommandBuffer(s.cmd)
			continue
		}
		keep = append(keep, s)
	}
	d.inflight = keep
}

// pitch rounds a row of w RGBA8 pixels up to the copy alignment.
func pitch(w int) int {
	return (w*4 + rowPitch - 1) / rowPitch * rowPitch
}

// ReadTexture copies tex into a staging buffer, waits for the GPU, and
// returns tightly packed RGBA8 rows.
func (d *Device) ReadTexture(gt graphics.Texture) ([]byte, error) {
	if d.destroyed.Load() {
		return nil, graphics.ErrDeviceLost
	}
	t, ok := gt.(*texture)
	if !ok {
		return nil, fmt.Errorf("readback: %w", errForeign)
	}
	stride := pitch(t.w)
	size := uint64(stride * t.h)

	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "sf:readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sf:readback"})
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("sf:readback"); err != nil {
		return nil, fmt.Errorf("failed to begin encoding: %w", err)
	}
	if barriers := transition(nil, t, gputypes.TextureUsageCopySrc); len(barriers) > 0 {
		enc.TransitionTextures(barriers)
	}
	enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(stride), RowsPerImage: uint32(t.h)},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: uint32(t.w), Height: uint32(t.h), DepthOrArrayLayers: 1},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("failed to end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmd)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return nil, fmt.Errorf("readback submit failed: %w", err)
	}
	if err := d.dev.WaitIdle(); err != nil {
		return nil, fmt.Errorf("readback wait failed: %w", err)
	}

	mapping, err := d.dev.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), int(size))
	out := make([]byte, t.w*t.h*4)
	for y := 0; y < t.h; y++ {
		copy(out[y*t.w*4:(y+1)*t.w*4], src[y*stride:])
	}
	if err := d.dev.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("failed to unmap readback buffer: %w", err)
	}

	if t.format == gputypes.TextureFormatBGRA8Unorm {
		swizzle(out)
	}
	return out, nil
}

// swizzle swaps the red and blue bytes of each pixel.
func swizzle(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
