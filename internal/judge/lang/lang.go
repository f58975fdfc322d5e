// Package lang adapts the judge to the supported submission languages.
// An adapter knows how to materialize source code in a scratch directory,
// compile it when the language needs that, and produce the run command.
package lang

import (
	"context"

	"intcode/internal/judge/model"
	"intcode/internal/judge/sandbox"
	appErr "intcode/pkg/errors"
)

// CompileResult reports a compile step. OK is true for interpreted languages
// that skip compilation. Message carries the compiler diagnostics on failure.
type CompileResult struct {
	OK      bool
	Message string
}

// Adapter prepares and runs one language.
type Adapter interface {
	ID() string
	// Prepare writes the source into workDir and compiles it if the language
	// requires that. A failed compilation is reported through CompileResult,
	// not through the error.
	Prepare(ctx context.Context, runner sandbox.Runner, workDir, code string) (CompileResult, error)
	// RunCmd is the argv executing the prepared program inside workDir.
	RunCmd() []string
}

// Config carries the tunable parts of the adapters.
type Config struct {
	// CompileTimeoutSec bounds the compile step wall time.
	CompileTimeoutSec int
	// CppCompileTemplate is the compiler command with {src} and {bin}
	// placeholders, split shell-style.
	CppCompileTemplate string
	// PythonBin is the interpreter executable name or path.
	PythonBin string
}

const (
	defaultCompileTimeoutSec  = 15
	defaultCppCompileTemplate = "g++ -std=c++17 -O2 -pipe -o {bin} {src}"
	defaultPythonBin          = "python3"
)

func (c Config) withDefaults() Config {
	if c.CompileTimeoutSec <= 0 {
		c.CompileTimeoutSec = defaultCompileTimeoutSec
	}
	if c.CppCompileTemplate == "" {
		c.CppCompileTemplate = defaultCppCompileTemplate
	}
	if c.PythonBin == "" {
		c.PythonBin = defaultPythonBin
	}
	return c
}

// ForLanguage returns the adapter for a language id.
func ForLanguage(id string, cfg Config) (Adapter, error) {
	cfg = cfg.withDefaults()
	switch id {
	case model.LangCpp17:
		return &cppAdapter{cfg: cfg}, nil
	case model.LangPython3:
		return &pythonAdapter{cfg: cfg}, nil
	default:
		return nil, appErr.Newf(appErr.LanguageNotSupported, "unsupported language: %s", id)
	}
}
