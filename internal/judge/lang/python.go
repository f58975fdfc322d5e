package lang

import (
	"context"
	"os"
	"path/filepath"

	"intcode/internal/judge/model"
	"intcode/internal/judge/sandbox"
	appErr "intcode/pkg/errors"
)

const pythonSourceFile = "main.py"

type pythonAdapter struct {
	cfg Config
}

func (a *pythonAdapter) ID() string {
	return model.LangPython3
}

// Prepare writes the script; syntax errors surface at run time as RE.
func (a *pythonAdapter) Prepare(_ context.Context, _ sandbox.Runner, workDir, code string) (CompileResult, error) {
	srcPath := filepath.Join(workDir, pythonSourceFile)
	if err := os.WriteFile(srcPath, []byte(code), 0644); err != nil {
		return CompileResult{}, appErr.Wrapf(err, appErr.StorageIoError, "write source failed")
	}
	return CompileResult{OK: true}, nil
}

func (a *pythonAdapter) RunCmd() []string {
	return []string{a.cfg.PythonBin, pythonSourceFile}
}
