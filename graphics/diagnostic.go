package graphics

import (
	"fmt"
	"strings"
)

// Language is the shading language a device compiles.
type Language int

const (
	WGSL Language = iota
	GLSL
	// GLSLES is GLSL ES 3.00 fed through the WebGL2 translator.
	GLSLES
)

func (l Language) String() string {
	switch l {
	case GLSL:
		return "glsl"
	case GLSLES:
		return "glsl-es"
	default:
		return "wgsl"
	}
}

type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	if s == StageVertex {
		return "vertex"
	}
	return "fragment"
}

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "error"
	}
}

// Diagnostic is one compiler message. Line and Column are 1-based and
// refer to the user's source; zero means unknown.
type Diagnostic struct {
	Severity Severity
	Stage    Stage
	Line     int
	Column   int
	Message  string
}

func (d Diagnostic) String() string {
	switch {
	case d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s line %d:%d: %s", d.Stage, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s line %d: %s", d.Stage, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Stage, d.Message)
	}
}

// CompileError is returned by Device.CreatePipeline when a shader stage
// fails to compile or link.
type CompileError struct {
	Label       string
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.Label != "" {
		b.WriteString(e.Label)
		b.WriteString(": ")
	}
	n := 0
	for _, d := range e.Diagnostics {
		if d.Severity != SeverityError {
			continue
		}
		if n > 0 {
			b.WriteString("\n")
		}
		b.WriteString(d.String())
		n++
	}
	if n == 0 {
		b.WriteString("shader compilation failed")
	}
	return b.String()
}

// ShaderSource is a stage's complete source text after the prologue has
// been prepended. PrologueLines is the number of lines in front of the
// user's first line.
type ShaderSource struct {
	Language      Language
	Stage         Stage
	Code          string
	PrologueLines int
}

// MapLine converts a line number of Code into the user's numbering.
// Lines inside the prologue map to 0.
func (s ShaderSource) MapLine(line int) int {
	if line <= s.PrologueLines {
		return 0
	}
	return line - s.PrologueLines
}
