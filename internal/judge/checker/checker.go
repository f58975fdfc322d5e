// Package checker decides whether a candidate's output is acceptable when
// byte equality is not the right criterion. It hosts problem-supplied Python
// checkers and a small set of builtin comparators.
package checker

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"intcode/internal/judge/sandbox"
	appErr "intcode/pkg/errors"
	"intcode/pkg/utils/logger"
)

// BuiltinPrefix selects a builtin comparator instead of a hosted script.
// Supported: "builtin:tokens" and "builtin:float:<eps>".
const BuiltinPrefix = "builtin:"

const (
	defaultTimeoutSec   = 2
	maxCheckerReadBytes = 16 * 1024 * 1024
)

// Input names the three files a check may consult.
type Input struct {
	InputPath    string
	ExpectedPath string
	ActualPath   string
}

// Outcome is the checker's decision. Message carries diagnostics for a
// rejection, never for acceptance.
type Outcome struct {
	Accepted bool
	Message  string
}

// Checker evaluates one case's output.
type Checker interface {
	Check(ctx context.Context, in Input) (Outcome, error)
}

// Config tunes the hosted checker.
type Config struct {
	TimeoutSec int
	PythonBin  string
}

// New builds a Checker from a problem's checker source. Sources with the
// builtin prefix never touch the sandbox.
func New(source string, runner sandbox.Runner, cfg Config) (Checker, error) {
	if strings.HasPrefix(source, BuiltinPrefix) {
		return newBuiltin(strings.TrimPrefix(source, BuiltinPrefix))
	}
	if strings.TrimSpace(source) == "" {
		return nil, appErr.New(appErr.CheckerError).WithMessage("checker source is empty")
	}
	if runner == nil {
		return nil, appErr.New(appErr.CheckerError).WithMessage("checker host needs a sandbox runner")
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = defaultTimeoutSec
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	return &hostedChecker{source: source, runner: runner, cfg: cfg}, nil
}

// spjWrapper loads the problem's checker module, feeds it the JSON payload
// from stdin and maps the boolean result onto the exit code: 0 accepted,
// 1 rejected, 2 checker fault.
const spjWrapper = `import importlib.util, json, sys
from pathlib import Path

def main():
    target = Path(sys.argv[1])
    spec = importlib.util.spec_from_file_location("checker", target)
    mod = importlib.util.module_from_spec(spec)
    spec.loader.exec_module(mod)
    if not hasattr(mod, "check"):
        sys.exit(2)
    payload = json.loads(sys.stdin.read())
    input_str = payload.get("input", "")
    user_output = payload.get("user_output", "")
    try:
        ok = bool(mod.check(input_str, user_output))
        sys.exit(0 if ok else 1)
    except Exception as exc:
        sys.stderr.write(str(exc))
        sys.exit(2)

if __name__ == "__main__":
    main()
`

type hostedChecker struct {
	source string
	runner sandbox.Runner
	cfg    Config
}

type spjPayload struct {
	Input      string `json:"input"`
	UserOutput string `json:"user_output"`
}

func (c *hostedChecker) Check(ctx context.Context, in Input) (Outcome, error) {
	inputText, err := readBounded(in.InputPath)
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "read case input failed")
	}
	userOutput, err := readBounded(in.ActualPath)
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "read candidate output failed")
	}
	payload, err := json.Marshal(spjPayload{Input: inputText, UserOutput: userOutput})
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "encode checker payload failed")
	}

	workDir, err := os.MkdirTemp("", "spj_")
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "create checker dir failed")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove checker dir failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	if err := os.WriteFile(filepath.Join(workDir, "checker.py"), []byte(c.source), 0644); err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "write checker failed")
	}
	if err := os.WriteFile(filepath.Join(workDir, "runner.py"), []byte(spjWrapper), 0644); err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "write checker wrapper failed")
	}

	res, err := c.runner.Run(ctx, sandbox.Spec{
		WorkDir:    workDir,
		Cmd:        []string{c.cfg.PythonBin, "runner.py", "checker.py"},
		Stdin:      string(payload),
		TimeoutSec: c.cfg.TimeoutSec,
	})
	if err != nil {
		return Outcome{}, err
	}
	if res.TimedOut {
		return Outcome{}, appErr.New(appErr.CheckerError).WithMessage("checker timed out")
	}
	switch res.ExitCode {
	case 0:
		return Outcome{Accepted: true}, nil
	case 1:
		return Outcome{Accepted: false}, nil
	default:
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "checker failed"
		}
		return Outcome{}, appErr.Newf(appErr.CheckerError, "checker exited %d: %s", res.ExitCode, msg)
	}
}

func readBounded(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxCheckerReadBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
