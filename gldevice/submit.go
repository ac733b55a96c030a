package gldevice

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/shaderforge/graphics"
)

type encoder struct {
	draws []graphics.DrawCall
}

func (e *encoder) Draw(dc graphics.DrawCall) { e.draws = append(e.draws, dc) }

func (e *encoder) Finish() (graphics.CommandBuffer, error) {
	return commands(e.draws), nil
}

type commands []graphics.DrawCall

// NewEncoder records draws; GL work happens in Submit.
func (d *Device) NewEncoder() (graphics.Encoder, error) {
	if d.destroyed {
		return nil, graphics.ErrDeviceLost
	}
	return &encoder{}, nil
}

// Submit replays the recorded draws in order.
func (d *Device) Submit(cb graphics.CommandBuffer) error {
	if d.destroyed {
		return graphics.ErrDeviceLost
	}
	draws, ok := cb.(commands)
	if !ok {
		return fmt.Errorf("command buffer not recorded by this device")
	}

	gl.BindVertexArray(d.vao)
	for _, dc := range draws {
		d.draw(dc)
	}
	gl.BindVertexArray(0)
	gl.UseProgram(0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		if code == gl.OUT_OF_MEMORY {
			return fmt.Errorf("%w: out of memory", graphics.ErrDeviceLost)
		}
		return fmt.Errorf("gl error 0x%x after %d draws", code, len(draws))
	}
	return nil
}

func (d *Device) draw(dc graphics.DrawCall) {
	t := dc.Target.(*texture)
	prog := dc.Pipeline.(*program)
	bs := dc.BindSet.(*bindSet)

	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.Viewport(0, 0, int32(t.w), int32(t.h))
	gl.ClearColor(float32(dc.Clear.R), float32(dc.Clear.G), float32(dc.Clear.B), float32(dc.Clear.A))
	gl.Clear(gl.COLOR_BUFFER_BIT)

	gl.UseProgram(prog.id)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, 0, bs.ubo)
	for i := 0; i < graphics.ChannelCount; i++ {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, bs.textures[i])
		gl.BindSampler(uint32(i), bs.samplers[i])
	}

	gl.DrawArrays(gl.TRIANGLES, 0, int32(dc.VertexCount))

	for i := 0; i < graphics.ChannelCount; i++ {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.BindSampler(uint32(i), 0)
	}
}

// ReadTexture copies a texture back through a pixel pack buffer.
func (d *Device) ReadTexture(tex graphics.Texture) ([]byte, error) {
	t := tex.(*texture)
	size := t.w * t.h * 4

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.fbo)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, d.pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
	gl.ReadPixels(0, 0, int32(t.w), int32(t.h), gl.RGBA, gl.UNSIGNED_BYTE, nil)

	ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, size, gl.MAP_READ_BIT)
	if ptr == nil {
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
		return nil, fmt.Errorf("failed to map pixel pack buffer")
	}
	out := make([]byte, size)
	copy(out, (*[1 << 30]byte)(ptr)[:size:size])
	gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	flipRows(out, t.w*4)
	return out, nil
}

// flipRows reverses row order in place; GL reads bottom row first.
func flipRows(pix []byte, stride int) {
	if stride <= 0 {
		return
	}
	tmp := make([]byte, stride)
	for top, bot := 0, len(pix)/stride-1; top < bot; top, bot = top+1, bot-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bot*stride : (bot+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
