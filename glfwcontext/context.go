package glfwcontext

import (
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
)

// Config describes the window to open.
type Config struct {
	Width, Height int
	Title         string
	Visible       bool
	// HighBitDepth requests 16 bits per color channel.
	HighBitDepth bool
}

// Context tracks mouse state for GetMouseInput and forwards transport
// keys to the frame loop.
type Context struct {
	window          *glfw.Window
	lastMouseClickX float64
	lastMouseClickY float64
	mouseWasDown    bool
	onKey           func(graphics.Key)
}

var (
	_ graphics.Context    = (*Context)(nil)
	_ graphics.KeyHandler = (*Context)(nil)
)

// New creates a GL 4.1 core window. InitGraphics must have been called
// on the main thread.
func New(cfg Config) (*Context, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	if cfg.HighBitDepth {
		glfw.WindowHint(glfw.RedBits, 16)
		glfw.WindowHint(glfw.GreenBits, 16)
		glfw.WindowHint(glfw.BlueBits, 16)
	}

	if cfg.Visible {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	title := cfg.Title
	if title == "" {
		title = "shaderforge"
	}
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, title, nil, nil)
	if err != nil {
		return nil, err
	}

	c := &Context{window: win}
	win.SetKeyCallback(c.glfwKeyCallback)
	return c, nil
}

// OnKey registers the handler for transport keys. Escape also closes
// the window.
func (c *Context) OnKey(f func(graphics.Key)) {
	c.onKey = f
}

func (c *Context) glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		w.SetShouldClose(true)
	}
	if k := translateKey(key); k != graphics.KeyUnknown && c.onKey != nil {
		c.onKey(k)
	}
}

func translateKey(key glfw.Key) graphics.Key {
	switch key {
	case glfw.KeySpace:
		return graphics.KeySpace
	case glfw.KeyLeft:
		return graphics.KeyLeft
	case glfw.KeyRight:
		return graphics.KeyRight
	case glfw.KeyHome:
		return graphics.KeyHome
	case glfw.KeyEscape:
		return graphics.KeyEscape
	}
	return graphics.KeyUnknown
}

// DetachCurrent makes no context current on the calling thread.
func (c *Context) DetachCurrent() {
	glfw.DetachCurrentContext()
}

// GetMouseInput retrieves and processes the current mouse state.
func (c *Context) GetMouseInput() [4]float32 {
	var mouseData [4]float32
	if c.window == nil {
		return mouseData
	}

	fbWidth, fbHeight := c.GetFramebufferSize()
	winWidth, winHeight := c.window.GetSize()
	cursorX, cursorY := c.window.GetCursorPos()
	isMouseDown := c.window.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press

	mouseData, c.mouseWasDown, c.lastMouseClickX, c.lastMouseClickY = pointerState(
		cursorX, cursorY, fbWidth, fbHeight, winWidth, winHeight,
		isMouseDown, c.mouseWasDown, c.lastMouseClickX, c.lastMouseClickY)
	return mouseData
}

// pointerState converts window cursor coordinates to framebuffer pixels
// with a bottom-left origin. A new press records the click position;
// click coordinates are negated while the button is up.
func pointerState(cursorX, cursorY float64, fbW, fbH, winW, winH int, down, wasDown bool, clickX, clickY float64) ([4]float32, bool, float64, float64) {
	scaleX, scaleY := 1.0, 1.0
	if winW > 0 && winH > 0 {
		scaleX = float64(fbW) / float64(winW)
		scaleY = float64(fbH) / float64(winH)
	}
	pixelX := cursorX * scaleX
	pixelY := cursorY * scaleY

	if down && !wasDown {
		clickX, clickY = pixelX, pixelY
	}

	cx := float32(clickX)
	cy := float32(fbH) - float32(clickY)
	if !down {
		cx, cy = -cx, -cy
	}
	return [4]float32{float32(pixelX), float32(fbH) - float32(pixelY), cx, cy}, down, clickX, clickY
}

// MakeCurrent makes the context current for the calling goroutine.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

func (c *Context) Shutdown() {
	c.window.Destroy()
}

func (c *Context) ShouldClose() bool {
	return c.window.ShouldClose()
}

func (c *Context) EndFrame() {
	c.window.SwapBuffers()
	glfw.PollEvents()
}

func (c *Context) GetFramebufferSize() (int, int) {
	return c.window.GetFramebufferSize()
}

func (c *Context) Time() float64 {
	return glfw.GetTime()
}

// InitGraphics initializes GLFW. Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	logging.With("glfw").Debug("GLFW initialized")
	return nil
}

// TerminateGraphics shuts GLFW down. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	logging.With("glfw").Debug("GLFW terminated")
}
