package checker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"intcode/internal/judge/sandbox"
	appErr "intcode/pkg/errors"
)

type fakeRunner struct {
	lastSpec sandbox.Spec
	result   sandbox.Result
	err      error
}

func (f *fakeRunner) Run(_ context.Context, spec sandbox.Spec) (sandbox.Result, error) {
	f.lastSpec = spec
	return f.result, f.err
}

func (f *fakeRunner) RunStream(_ context.Context, spec sandbox.Spec) (sandbox.Result, error) {
	f.lastSpec = spec
	return f.result, f.err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func caseInput(t *testing.T, input, expected, actual string) Input {
	t.Helper()
	dir := t.TempDir()
	return Input{
		InputPath:    writeFile(t, dir, "case.in", input),
		ExpectedPath: writeFile(t, dir, "case.out", expected),
		ActualPath:   writeFile(t, dir, "user.out", actual),
	}
}

func TestHostedCheckerPayloadAndVerdicts(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{ExitCode: 0}}
	c, err := New("def check(input, output):\n    return True\n", runner, Config{TimeoutSec: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := caseInput(t, "5\n", "answer\n", "user says\n")
	out, err := c.Check(context.Background(), in)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !out.Accepted {
		t.Fatal("expected acceptance on exit 0")
	}

	var payload spjPayload
	if err := json.Unmarshal([]byte(runner.lastSpec.Stdin), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Input != "5\n" || payload.UserOutput != "user says\n" {
		t.Fatalf("payload = %+v", payload)
	}
	if runner.lastSpec.TimeoutSec != 3 {
		t.Fatalf("timeout = %d", runner.lastSpec.TimeoutSec)
	}
	if got := runner.lastSpec.Cmd; len(got) != 3 || got[0] != "python3" || got[1] != "runner.py" {
		t.Fatalf("cmd = %v", got)
	}

	runner.result = sandbox.Result{ExitCode: 1}
	out, err = c.Check(context.Background(), in)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Accepted {
		t.Fatal("expected rejection on exit 1")
	}

	runner.result = sandbox.Result{ExitCode: 2, Stderr: "boom"}
	_, err = c.Check(context.Background(), in)
	if !appErr.Is(err, appErr.CheckerError) {
		t.Fatalf("error = %v, want CheckerError", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error = %v", err)
	}
}

func TestHostedCheckerTimeout(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{ExitCode: -1, TimedOut: true}}
	c, err := New("def check(i, o):\n    return True\n", runner, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Check(context.Background(), caseInput(t, "", "", ""))
	if !appErr.Is(err, appErr.CheckerError) {
		t.Fatalf("error = %v, want CheckerError", err)
	}
}

func TestHostedCheckerRemovesWorkDir(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{ExitCode: 0}}
	c, _ := New("def check(i, o):\n    return True\n", runner, Config{})
	if _, err := c.Check(context.Background(), caseInput(t, "in", "exp", "act")); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if runner.lastSpec.WorkDir == "" {
		t.Fatal("checker never ran")
	}
	if _, err := os.Stat(runner.lastSpec.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("checker dir still exists: %v", err)
	}
}

func TestBuiltinTokens(t *testing.T) {
	c, err := New("builtin:tokens", nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.Check(context.Background(), caseInput(t, "", "1 2\n3\n", "1  2 3\n"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected token match, got %q", out.Message)
	}

	out, err = c.Check(context.Background(), caseInput(t, "", "1 2 3", "1 2 4"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Accepted {
		t.Fatal("expected token mismatch")
	}

	out, err = c.Check(context.Background(), caseInput(t, "", "1 2 3", "1 2"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Accepted {
		t.Fatal("expected length mismatch")
	}
}

func TestBuiltinFloat(t *testing.T) {
	c, err := New("builtin:float:1e-6", nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.Check(context.Background(), caseInput(t, "", "3.1415926\n", "3.14159262\n"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected float match, got %q", out.Message)
	}

	out, err = c.Check(context.Background(), caseInput(t, "", "1.0", "1.1"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Accepted {
		t.Fatal("expected float mismatch")
	}
}

func TestBuiltinUnknown(t *testing.T) {
	if _, err := New("builtin:regex", nil, Config{}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("error = %v, want InvalidParams", err)
	}
	if _, err := New("builtin:float:zero", nil, Config{}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("error = %v, want InvalidParams", err)
	}
}
