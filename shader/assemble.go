package shader

import (
	"regexp"
	"strings"

	"github.com/richinsley/shaderforge/graphics"
)

// Source is a stage's full text with its prologue.
type Source = graphics.ShaderSource

var (
	mainImageRE = regexp.MustCompile(`\bvoid\s+mainImage\s*\(`)
	mainRE      = regexp.MustCompile(`\bvoid\s+main\s*\(`)
)

// Shadertoy style entry point wrapper for GLSL fragments.
const mainImageWrapper = `
void main(void)
{
    mainImage(fragColor, gl_FragCoord.xy);
}
`

// Assemble prepends the current prologue to user source.
func Assemble(lang graphics.Language, stage graphics.Stage, user string) Source {
	return V1.Assemble(lang, stage, user)
}

// Assemble prepends p to user source. GLSL fragments that only define
// mainImage get a main wrapper appended.
func (p Prologue) Assemble(lang graphics.Language, stage graphics.Stage, user string) Source {
	pro := p.Render(lang, stage)
	code := pro + user
	if lang != graphics.WGSL && stage == graphics.StageFragment &&
		mainImageRE.MatchString(user) && !mainRE.MatchString(user) {
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		code += mainImageWrapper
	}
	return Source{
		Language:      lang,
		Stage:         stage,
		Code:          code,
		PrologueLines: strings.Count(pro, "\n"),
	}
}
