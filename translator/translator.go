// Package translator holds the process-wide WebGL2 shader translator.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/richinsley/shaderforge/graphics"
	gst "github.com/richinsley/goshadertranslator"
)

var (
	once    sync.Once
	shared  *gst.ShaderTranslator
	initErr error
)

// Get returns the shared translator, starting it on first use.
func Get() (*gst.ShaderTranslator, error) {
	once.Do(func() {
		shared, initErr = gst.NewShaderTranslator(context.Background())
		if initErr != nil {
			initErr = fmt.Errorf("failed to start shader translator: %w", initErr)
		}
	})
	return shared, initErr
}

// Result is one translated stage.
type Result struct {
	Code string
	// Names maps source identifiers to the names used in Code.
	Names map[string]string
}

// Name returns the translated name of a source identifier, or the
// identifier itself when the translator kept it.
func (r Result) Name(ident string) string {
	if n, ok := r.Names[ident]; ok && n != "" {
		return n
	}
	return ident
}

// ToGLSL410 translates a GLSL ES 3.00 stage to desktop GLSL 4.10.
func ToGLSL410(src string, stage graphics.Stage) (Result, error) {
	t, err := Get()
	if err != nil {
		return Result{}, err
	}
	out, err := t.TranslateShader(src, stage.String(), gst.ShaderSpecWebGL2, gst.OutputFormatGLSL410)
	if err != nil {
		return Result{}, err
	}
	res := Result{Code: out.Code, Names: make(map[string]string, len(out.Variables))}
	for name, v := range out.Variables {
		res.Names[name] = v.MappedName
	}
	return res, nil
}
