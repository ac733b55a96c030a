package main

import (
	"fmt"

	"github.com/richinsley/shaderforge/driver"
	"github.com/richinsley/shaderforge/gldevice"
	"github.com/richinsley/shaderforge/glfwcontext"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/halgpu"
	"github.com/richinsley/shaderforge/headless"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/options"
)

// backend is an opened device plus, for interactive runs, the window it
// presents to.
type backend struct {
	dev     graphics.Device
	win     graphics.Context
	present driver.PresentFunc
	close   func()
}

func openBackend(opts *options.ShaderOptions) (*backend, error) {
	if opts.UseHAL() {
		return openHAL()
	}
	return openGL(opts)
}

// openHAL opens the best wgpu HAL backend. It renders offscreen only, so
// it has no window and is used for recording.
func openHAL() (*backend, error) {
	dev, err := halgpu.Open(halgpu.WithAsync())
	if err != nil {
		return nil, err
	}
	return &backend{dev: dev, close: dev.Destroy}, nil
}

func openGL(opts *options.ShaderOptions) (*backend, error) {
	var (
		win      graphics.Context
		shutdown func()
	)
	if *opts.Headless {
		ctx, err := headless.New(*opts.Width, *opts.Height)
		if err != nil {
			return nil, err
		}
		win, shutdown = ctx, ctx.Shutdown
	} else {
		if err := glfwcontext.InitGraphics(); err != nil {
			return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
		}
		// Recording renders into its own target; the window only carries
		// the context.
		ctx, err := glfwcontext.New(glfwcontext.Config{
			Width:        *opts.Width,
			Height:       *opts.Height,
			Visible:      !*opts.Record,
			HighBitDepth: *opts.BitDepth > 8,
		})
		if err != nil {
			glfwcontext.TerminateGraphics()
			return nil, fmt.Errorf("failed to create window: %w", err)
		}
		win = ctx
		shutdown = func() {
			ctx.Shutdown()
			glfwcontext.TerminateGraphics()
		}
	}
	win.MakeCurrent()

	var dopts []gldevice.Option
	if *opts.WebGL2 {
		dopts = append(dopts, gldevice.WithWebGL2())
	}
	dev, err := gldevice.New(dopts...)
	if err != nil {
		shutdown()
		return nil, err
	}

	logging.With("main").Debug("gl backend ready", "headless", *opts.Headless, "language", dev.Language())
	return &backend{
		dev:     dev,
		win:     win,
		present: dev.Screen,
		close: func() {
			dev.Destroy()
			shutdown()
		},
	}, nil
}
