package lang

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"intcode/internal/judge/model"
	"intcode/internal/judge/sandbox"
	appErr "intcode/pkg/errors"
)

const (
	cppSourceFile = "Main.cpp"
	cppBinaryFile = "main.out"

	compileOutputMaxBytes = 64 * 1024
)

type cppAdapter struct {
	cfg Config
}

func (a *cppAdapter) ID() string {
	return model.LangCpp17
}

func (a *cppAdapter) Prepare(ctx context.Context, runner sandbox.Runner, workDir, code string) (CompileResult, error) {
	srcPath := filepath.Join(workDir, cppSourceFile)
	if err := os.WriteFile(srcPath, []byte(code), 0644); err != nil {
		return CompileResult{}, appErr.Wrapf(err, appErr.StorageIoError, "write source failed")
	}

	cmd, err := buildCompileCommand(a.cfg.CppCompileTemplate)
	if err != nil {
		return CompileResult{}, err
	}

	// Compilers routinely need more address space than candidate programs,
	// so the compile step runs without a memory rlimit.
	res, err := runner.Run(ctx, sandbox.Spec{
		WorkDir:        workDir,
		Cmd:            cmd,
		TimeoutSec:     a.cfg.CompileTimeoutSec,
		MaxOutputBytes: compileOutputMaxBytes,
	})
	if err != nil {
		return CompileResult{}, err
	}
	if res.TimedOut {
		return CompileResult{Message: "compilation timed out"}, nil
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			msg = "compilation failed"
		}
		return CompileResult{Message: msg}, nil
	}
	return CompileResult{OK: true}, nil
}

func (a *cppAdapter) RunCmd() []string {
	return []string{"./" + cppBinaryFile}
}

func buildCompileCommand(tpl string) ([]string, error) {
	expanded := strings.ReplaceAll(tpl, "{src}", cppSourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", cppBinaryFile)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse compile template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("compile template is empty")
	}
	return fields, nil
}
