package shader

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/wgsl"
	"github.com/richinsley/shaderforge/graphics"
)

// CompileResult is the outcome reported to a host UI.
type CompileResult struct {
	OK    bool
	Error string
}

// ResultFrom converts a compile error into a CompileResult.
func ResultFrom(err error) CompileResult {
	if err == nil {
		return CompileResult{OK: true}
	}
	var ce *graphics.CompileError
	if errors.As(err, &ce) {
		return CompileResult{Error: formatErrors(ce.Diagnostics, err.Error())}
	}
	return CompileResult{Error: err.Error()}
}

func formatErrors(diags []graphics.Diagnostic, fallback string) string {
	var lines []string
	for _, d := range diags {
		if d.Severity == graphics.SeverityError {
			lines = append(lines, d.String())
		}
	}
	if len(lines) == 0 {
		return fallback
	}
	return strings.Join(lines, "\n")
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []graphics.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == graphics.SeverityError {
			return true
		}
	}
	return false
}

var (
	// ERROR: 0:12: 'x' : undeclared identifier (ANGLE, Apple)
	angleRE = regexp.MustCompile(`^(ERROR|WARNING|INFO):\s*\d+:(\d+):\s*(.*)$`)
	// 0:12(5): error: message (Mesa)
	mesaRE = regexp.MustCompile(`^\d+:(\d+)\((\d+)\):\s*(error|warning|info)\s*:\s*(.*)$`)
	// 0(12) : error C0000: message (NVIDIA)
	nvRE      = regexp.MustCompile(`^\d+\((\d+)\)\s*:\s*(error|warning|fatal error)\s*(?:[A-Z]\d+)?\s*:\s*(.*)$`)
	summaryRE = regexp.MustCompile(`^ERROR:\s*\d+\s+compilation errors`)
)

func severityOf(s string) graphics.Severity {
	switch strings.ToLower(s) {
	case "warning":
		return graphics.SeverityWarning
	case "info":
		return graphics.SeverityInfo
	}
	return graphics.SeverityError
}

// ParseInfoLog turns a GL driver or ANGLE info log into diagnostics with
// line numbers mapped back to the user's source.
func ParseInfoLog(src Source, log string) []graphics.Diagnostic {
	var out []graphics.Diagnostic
	for _, raw := range strings.Split(log, "\n") {
		line := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
		if line == "" || summaryRE.MatchString(line) {
			continue
		}
		d := graphics.Diagnostic{Stage: src.Stage, Message: line}
		if m := angleRE.FindStringSubmatch(line); m != nil {
			d.Severity = severityOf(m[1])
			d.Line = src.MapLine(atoi(m[2]))
			d.Message = m[3]
		} else if m := mesaRE.FindStringSubmatch(line); m != nil {
			d.Line = src.MapLine(atoi(m[1]))
			d.Column = atoi(m[2])
			d.Severity = severityOf(m[3])
			d.Message = m[4]
		} else if m := nvRE.FindStringSubmatch(line); m != nil {
			d.Line = src.MapLine(atoi(m[1]))
			d.Severity = severityOf(strings.TrimPrefix(m[2], "fatal "))
			d.Message = m[3]
		}
		out = append(out, d)
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var (
	nagaLineColRE = regexp.MustCompile(`line (\d+), column (\d+): (.*)$`)
	nagaSpanRE    = regexp.MustCompile(`(?:^|: )(\d+):(\d+): (.*)$`)
)

// ValidateWGSL parses, lowers and validates a WGSL stage with naga.
// Positions in the returned diagnostics refer to the user's source.
func ValidateWGSL(src Source) []graphics.Diagnostic {
	ast, err := naga.Parse(src.Code)
	if err != nil {
		return []graphics.Diagnostic{nagaDiagnostic(src, err.Error())}
	}
	lowered, err := wgsl.LowerWithWarnings(ast, src.Code)
	if err != nil {
		return []graphics.Diagnostic{nagaDiagnostic(src, err.Error())}
	}

	var diags []graphics.Diagnostic
	for _, w := range lowered.Warnings {
		diags = append(diags, graphics.Diagnostic{
			Severity: graphics.SeverityWarning,
			Stage:    src.Stage,
			Line:     src.MapLine(w.Span.Start.Line),
			Column:   w.Span.Start.Column,
			Message:  w.Message,
		})
	}

	verrs, err := naga.Validate(lowered.Module)
	if err != nil {
		diags = append(diags, graphics.Diagnostic{Stage: src.Stage, Message: err.Error()})
	}
	for _, ve := range verrs {
		diags = append(diags, graphics.Diagnostic{Stage: src.Stage, Message: ve.Error()})
	}
	return diags
}

func nagaDiagnostic(src Source, msg string) graphics.Diagnostic {
	d := graphics.Diagnostic{Stage: src.Stage, Message: msg}
	if m := nagaLineColRE.FindStringSubmatch(msg); m != nil {
		d.Line, d.Column, d.Message = src.MapLine(atoi(m[1])), atoi(m[2]), m[3]
	} else if m := nagaSpanRE.FindStringSubmatch(msg); m != nil {
		d.Line, d.Column, d.Message = src.MapLine(atoi(m[1])), atoi(m[2]), m[3]
	}
	return d
}
