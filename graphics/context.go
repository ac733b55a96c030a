package graphics

// Context is the windowing surface a frame loop presents to.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	// EndFrame presents the default framebuffer and pumps window events.
	EndFrame()
	GetFramebufferSize() (int, int)
	Time() float64
	// GetMouseInput returns the pointer state in framebuffer pixels:
	// x, y, clickX, clickY. Click coordinates are negative while released.
	GetMouseInput() [4]float32
}

// KeyHandler is implemented by contexts that can report key presses to
// the frame loop (play/pause, seek).
type KeyHandler interface {
	OnKey(func(key Key))
}

// Key is a backend independent key code for the transport controls.
type Key int

const (
	KeyUnknown Key = iota
	KeySpace
	KeyLeft
	KeyRight
	KeyHome
	KeyEscape
)
