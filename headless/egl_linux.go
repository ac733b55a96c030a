//go:build linux

// Package headless provides an offscreen OpenGL context for rendering
// without a window.
package headless

import (
	"errors"
	"fmt"
	"time"

	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/logging"
)

/*
#cgo LDFLAGS: -lEGL
#include <EGL/egl.h>
#include <EGL/eglext.h>

static PFNEGLQUERYDEVICESEXTPROC sf_query_devices_fn;
static PFNEGLGETPLATFORMDISPLAYEXTPROC sf_platform_display_fn;

static void sf_load_extensions(void) {
    sf_query_devices_fn = (PFNEGLQUERYDEVICESEXTPROC) eglGetProcAddress("eglQueryDevicesEXT");
    sf_platform_display_fn = (PFNEGLGETPLATFORMDISPLAYEXTPROC) eglGetProcAddress("eglGetPlatformDisplayEXT");
}

static EGLBoolean sf_query_devices(EGLint max, EGLDeviceEXT *out, EGLint *n) {
    return sf_query_devices_fn ? sf_query_devices_fn(max, out, n) : EGL_FALSE;
}

static EGLDisplay sf_device_display(EGLDeviceEXT dev) {
    if (!sf_platform_display_fn) {
        return EGL_NO_DISPLAY;
    }
    return sf_platform_display_fn(EGL_PLATFORM_DEVICE_EXT, dev, NULL);
}
*/
import "C"

var (
	noDisplay = C.EGLDisplay(C.EGL_NO_DISPLAY)
	noSurface = C.EGLSurface(C.EGL_NO_SURFACE)
	noContext = C.EGLContext(C.EGL_NO_CONTEXT)
)

// Headless is a desktop GL 4.1 core context on an EGL pbuffer. It never
// asks to close; the frame loop ends through its context or frame limit.
type Headless struct {
	display C.EGLDisplay
	context C.EGLContext
	surface C.EGLSurface
	w, h    int
	start   time.Time
}

var _ graphics.Context = (*Headless)(nil)

// openDisplay prefers an enumerated device display (a GPU inside a
// container has no native display) and falls back to the default one.
func openDisplay() (C.EGLDisplay, error) {
	log := logging.With("egl")
	C.sf_load_extensions()

	var n C.EGLint
	if C.sf_query_devices(0, nil, &n) == C.EGL_TRUE && n > 0 {
		devices := make([]C.EGLDeviceEXT, n)
		if C.sf_query_devices(n, &devices[0], &n) == C.EGL_FALSE {
			return noDisplay, errors.New("eglQueryDevicesEXT failed")
		}
		for i, dev := range devices[:n] {
			if d := C.sf_device_display(dev); d != noDisplay {
				log.Debug("using EGL device", "index", i, "devices", int(n))
				return d, nil
			}
		}
		return noDisplay, errors.New("no EGL device yields a display")
	}

	log.Warn("EGL device enumeration unavailable, using the default display")
	d := C.eglGetDisplay(C.EGLNativeDisplayType(C.EGL_DEFAULT_DISPLAY))
	if d == noDisplay {
		return noDisplay, errors.New("eglGetDisplay(EGL_DEFAULT_DISPLAY) failed")
	}
	return d, nil
}

// New creates the pbuffer context and makes it current on the calling
// thread.
func New(width, height int) (graphics.Context, error) {
	display, err := openDisplay()
	if err != nil {
		return nil, fmt.Errorf("failed to get EGL display: %w", err)
	}
	var major, minor C.EGLint
	if C.eglInitialize(display, &major, &minor) == C.EGL_FALSE {
		return nil, errors.New("eglInitialize failed")
	}
	logging.With("egl").Info("EGL initialized", "version", fmt.Sprintf("%d.%d", major, minor))

	hl := &Headless{display: display, context: noContext, surface: noSurface, w: width, h: height, start: time.Now()}
	if err := hl.init(); err != nil {
		hl.Shutdown()
		return nil, err
	}
	return hl, nil
}

func (hl *Headless) init() error {
	if C.eglBindAPI(C.EGL_OPENGL_API) == C.EGL_FALSE {
		return errors.New("EGL display does not support desktop OpenGL")
	}

	attrs := []C.EGLint{
		C.EGL_SURFACE_TYPE, C.EGL_PBUFFER_BIT,
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_BIT,
		C.EGL_RED_SIZE, 8, C.EGL_GREEN_SIZE, 8, C.EGL_BLUE_SIZE, 8, C.EGL_ALPHA_SIZE, 8,
		C.EGL_NONE,
	}
	var cfg C.EGLConfig
	var count C.EGLint
	if C.eglChooseConfig(hl.display, &attrs[0], &cfg, 1, &count) == C.EGL_FALSE || count == 0 {
		return errors.New("no EGL config with an RGBA8 pbuffer")
	}

	size := []C.EGLint{C.EGL_WIDTH, C.EGLint(hl.w), C.EGL_HEIGHT, C.EGLint(hl.h), C.EGL_NONE}
	if hl.surface = C.eglCreatePbufferSurface(hl.display, cfg, &size[0]); hl.surface == noSurface {
		return fmt.Errorf("failed to create %dx%d pbuffer", hl.w, hl.h)
	}

	version := []C.EGLint{
		C.EGL_CONTEXT_MAJOR_VERSION, 4,
		C.EGL_CONTEXT_MINOR_VERSION, 1,
		C.EGL_CONTEXT_OPENGL_PROFILE_MASK, C.EGL_CONTEXT_OPENGL_CORE_PROFILE_BIT,
		C.EGL_NONE,
	}
	if hl.context = C.eglCreateContext(hl.display, cfg, noContext, &version[0]); hl.context == noContext {
		return errors.New("failed to create a GL 4.1 core EGL context")
	}
	if C.eglMakeCurrent(hl.display, hl.surface, hl.surface, hl.context) == C.EGL_FALSE {
		return errors.New("eglMakeCurrent failed")
	}
	return nil
}

func (hl *Headless) MakeCurrent() {
	C.eglMakeCurrent(hl.display, hl.surface, hl.surface, hl.context)
}

// Shutdown releases the context, surface and display. It is safe to call
// more than once.
func (hl *Headless) Shutdown() {
	if hl.display == noDisplay {
		return
	}
	C.eglMakeCurrent(hl.display, noSurface, noSurface, noContext)
	if hl.context != noContext {
		C.eglDestroyContext(hl.display, hl.context)
	}
	if hl.surface != noSurface {
		C.eglDestroySurface(hl.display, hl.surface)
	}
	C.eglTerminate(hl.display)
	hl.display = noDisplay
}

func (hl *Headless) ShouldClose() bool { return false }

func (hl *Headless) EndFrame() { C.eglSwapBuffers(hl.display, hl.surface) }

func (hl *Headless) GetFramebufferSize() (int, int) { return hl.w, hl.h }

func (hl *Headless) Time() float64 { return time.Since(hl.start).Seconds() }

// GetMouseInput reports a released pointer at the origin.
func (hl *Headless) GetMouseInput() [4]float32 { return [4]float32{0, 0, -1, -1} }
