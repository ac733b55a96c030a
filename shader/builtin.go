package shader

import (
	"strings"

	"github.com/richinsley/shaderforge/graphics"
)

// Vertex counts of the built-in geometry.
const (
	FullscreenVertexCount = 6
	CubeVertexCount       = 36
	SphereVertexCount     = 32 * 16 * 6
)

func pick(lang graphics.Language, wgsl, glsl string) string {
	if lang == graphics.WGSL {
		return wgsl
	}
	return glsl
}

// FullscreenVertex draws two triangles covering the viewport from the
// vertex index alone.
func FullscreenVertex(lang graphics.Language) string {
	return pick(lang, fullscreenVertexWGSL, fullscreenVertexGLSL)
}

// CubeVertex draws a unit cube rotating about Y.
func CubeVertex(lang graphics.Language) string {
	return pick(lang, cubeVertexWGSL, cubeVertexGLSL)
}

// SphereVertex draws a 32x16 UV sphere rotating about Y.
func SphereVertex(lang graphics.Language) string {
	return pick(lang, sphereVertexWGSL, sphereVertexGLSL)
}

// DefaultFragment is a time-cycling gradient that pulses on the beat.
func DefaultFragment(lang graphics.Language) string {
	return pick(lang, defaultFragmentWGSL, defaultFragmentGLSL)
}

// BlitFragment copies channel 0 to the target.
func BlitFragment(lang graphics.Language) string {
	return pick(lang, blitFragmentWGSL, blitFragmentGLSL)
}

// Builtin looks a vertex preset up by name ("fullscreen", "quad", "cube",
// "sphere") and returns its source and vertex count.
func Builtin(name string, lang graphics.Language) (string, int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fullscreen", "quad":
		return FullscreenVertex(lang), FullscreenVertexCount, true
	case "cube":
		return CubeVertex(lang), CubeVertexCount, true
	case "sphere":
		return SphereVertex(lang), SphereVertexCount, true
	}
	return "", 0, false
}
