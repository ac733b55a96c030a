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
)

// Frame renders one frame into present: tick the tracker, refresh and
// upload the parameter buffer, run the on-frame hooks, then encode and
// submit the active graph.
func (d *Driver) Frame(present graphics.Texture) (FrameState, error) {
	t := d.Time()
	st := FrameState{Time: t, Frame: d.frame, Tracker: d.tracker}

	d.params.SetTime(float32(t))
	d.params.SetFrame(d.frame)
	if d.tracker != nil {
		b := d.tracker.Tick()
		st.Beat = &b
		d.params.SetBeat(float32(d.tracker.Clock().BPM()), float32(b.Beat), float32(b.BarProgress),
			float32(b.QuarterPhase), float32(b.EighthPhase), float32(b.SixteenthPhase))
	}
	if err := d.params.Upload(); err != nil {
		return st, err
	}

	for _, f := range d.onFrame {
		f(st)
	}

	enc, err := d.dev.NewEncoder()
	if err != nil {
		return st, err
	}
	if g := d.activeGraph(t, st.Beat); g != nil {
		g.Render(enc, present, d.params)
	}
	cb, err := enc.Finish()
	if err != nil {
		return st, fmt.Errorf("failed to finish frame %d: %w", d.frame, err)
	}
	if err := d.dev.Submit(cb); err != nil {
		return st, fmt.Errorf("failed to submit frame %d: %w", d.frame, err)
	}
	d.frame++
	return st, nil
}

// activeGraph picks the playlist entry for the current bar, or the single
// graph when no playlist is set.
func (d *Driver) activeGraph(t float64, b *beat.State) *renderer.Graph {
	if d.playlist == nil {
		return d.graph
	}
	total := d.playlist.TotalBars()
	if total == 0 {
		return nil
	}

	var bar int
	if b != nil {
		bar = b.BarCount
	} else {
		bar = d.bars.Update(t).BarCount
	}
	bar %= total
	if bar < 0 {
		bar += total
	}
	i, _, ok := d.playlist.Index(bar)
	if !ok {
		return nil
	}
	if i != d.active {
		d.active = i
		logging.With("driver").Info("playlist entry", "index", i, "bar", bar)
	}
	return d.entries[i]
}

// ActiveEntry is the index of the playlist entry rendered by the last
// frame, or -1.
func (d *Driver) ActiveEntry() int { return d.active }

// PresentFunc returns the target a frame of the given size presents to.
type PresentFunc func(width, height int) graphics.Texture

// Run drives frames until the window closes or ctx is done. Playback
// starts immediately; with a KeyHandler window, space toggles pause,
// left and right seek by a bar and home rewinds.
func (d *Driver) Run(ctx context.Context, win graphics.Context, present PresentFunc) error {
	if kh, ok := win.(graphics.KeyHandler); ok {
		kh.OnKey(d.HandleKey)
	}
	d.Play()
	defer d.Pause()

	for !win.ShouldClose() {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, h := win.GetFramebufferSize()
		if w != d.width || h != d.height {
			if err := d.Resize(w, h); err != nil {
				return err
			}
		}
		mouse := win.GetMouseInput()
		d.SetPointer(mouse[0], mouse[1])

		if _, err := d.Frame(present(d.width, d.height)); err != nil {
			if errors.Is(err, graphics.ErrDeviceLost) {
				return err
			}
			logging.With("driver").Error("frame failed", "frame", d.frame, "error", err)
		}
		win.EndFrame()
	}
	return nil
}

// HandleKey applies a transport key.
func (d *Driver) HandleKey(k graphics.Key) {
	switch k {
	case graphics.KeySpace:
		if d.playing {
			d.Pause()
		} else {
			d.Play()
		}
	case graphics.KeyLeft, graphics.KeyRight:
		if d.tracker == nil {
			return
		}
		cfg := d.tracker.Config()
		step := cfg.RowsPerBeat * cfg.BeatsPerBar
		if k == graphics.KeyLeft {
			step = -step
		}
		d.tracker.SeekRow(d.tracker.Row() + step)
	case graphics.KeyHome:
		playing := d.playing
		d.Stop()
		if playing {
			d.Play()
		}
	}
}

// FrameSink consumes rendered frames as tightly packed RGBA8 rows.
type FrameSink interface {
	WriteFrame(pixels []byte, pts int64) error
}

type RecordOptions struct {
	Duration float64
	FPS      int
}

// Record renders Duration seconds at a fixed step of 1/FPS and hands each
// frame to sink. Playback time and the tracker follow the frame index
// rather than the wall clock. Pending compiles are awaited first so no
// frame is recorded with passes missing.
func (d *Driver) Record(ctx context.Context, opts RecordOptions, sink FrameSink) error {
	reader, ok := d.dev.(graphics.Reader)
	if !ok {
		return errors.New("driver: device cannot read frames back")
	}
	if opts.FPS <= 0 {
		return fmt.Errorf("driver: invalid frame rate %d", opts.FPS)
	}

	if d.graph != nil {
		if err := d.graph.Wait(ctx); err != nil {
			return err
		}
	}
	for _, g := range d.entries {
		if err := g.Wait(ctx); err != nil {
			return err
		}
	}

	target, err := d.dev.CreateTexture(graphics.TextureDescriptor{
		Label:  "sf:record",
		Width:  d.width,
		Height: d.height,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		return fmt.Errorf("failed to create record target: %w", err)
	}
	defer d.dev.DestroyTexture(target)

	virt := time.Unix(0, 0)
	clock := func() time.Time { return virt }
	wall := d.now
	d.now = clock
	if d.tracker != nil {
		d.tracker.SetClock(clock)
	}
	defer func() {
		d.Pause()
		d.now = wall
		if d.tracker != nil {
			d.tracker.SetClock(wall)
		}
	}()

	d.Stop()
	d.Play()

	log := logging.With("driver")
	totalFrames := int(opts.Duration * float64(opts.FPS))
	log.Info("recording", "frames", totalFrames, "fps", opts.FPS, "width", d.width, "height", d.height)

	for i := 0; i < totalFrames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		virt = time.Unix(0, 0).Add(time.Duration(float64(i) * float64(time.Second) / float64(opts.FPS)))

		if _, err := d.Frame(target); err != nil {
			return err
		}
		pixels, err := reader.ReadTexture(target)
		if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", i, err)
		}
		if err := sink.WriteFrame(pixels, int64(i)); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}
