//go:build linux

package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"intcode/internal/judge/sandbox/sandboxinit"
	appErr "intcode/pkg/errors"
)

type linuxRunner struct {
	cfg Config
}

// NewRunner creates the Linux runner.
func NewRunner(cfg Config) (Runner, error) {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.StderrMaxBytes <= 0 {
		cfg.StderrMaxBytes = defaultStderrMaxBytes
	}
	return &linuxRunner{cfg: cfg}, nil
}

func (r *linuxRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	return r.run(ctx, spec, false)
}

func (r *linuxRunner) RunStream(ctx context.Context, spec Spec) (Result, error) {
	if spec.StdoutPath == "" {
		return Result{}, appErr.ValidationError("stdout_path", "required in stream mode")
	}
	return r.run(ctx, spec, true)
}

func (r *linuxRunner) run(ctx context.Context, spec Spec, stream bool) (Result, error) {
	if len(spec.Cmd) == 0 {
		return Result{}, appErr.ValidationError("cmd", "required")
	}
	if spec.WorkDir == "" {
		return Result{}, appErr.ValidationError("work_dir", "required")
	}

	reqFile, err := encodeRequest(buildInitRequest(spec, stream))
	if err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "encode sandbox request failed")
	}
	defer reqFile.Close()

	cmd := exec.Command(r.cfg.HelperPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.ExtraFiles = []*os.File{reqFile}

	stdout := &capWriter{limit: spec.MaxOutputBytes}
	if stdout.limit <= 0 {
		stdout.limit = defaultStderrMaxBytes
	}
	stderr := &capWriter{limit: r.cfg.StderrMaxBytes}
	if !stream {
		cmd.Stdin = strings.NewReader(spec.Stdin)
		cmd.Stdout = stdout
	}
	// Stream mode still captures stderr in the parent unless a path is set,
	// so runtime diagnostics survive even with file-redirected stdout.
	if spec.StderrPath == "" {
		cmd.Stderr = stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start sandbox helper failed")
	}
	pid := cmd.Process.Pid

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if spec.TimeoutSec > 0 {
			wallTimer = time.After(time.Duration(spec.TimeoutSec) * time.Second)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Sweep any processes the child left behind in its group.
	killProcessGroup(pid)

	res := Result{
		WallTimeMS:      time.Since(start).Milliseconds(),
		TimedOut:        timedOut.Load(),
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.truncated,
	}
	res.ExitCode, res.Signal = exitStatus(cmd.ProcessState, waitErr)
	if res.Signal == syscall.SIGXCPU.String() {
		res.TimedOut = true
	}
	if res.Signal == syscall.SIGXFSZ.String() {
		res.FileSizeExceeded = true
	}
	if ctx.Err() != nil {
		return res, appErr.Wrapf(ctx.Err(), appErr.Timeout, "sandbox run canceled")
	}
	return res, nil
}

func buildInitRequest(spec Spec, stream bool) sandboxinit.Request {
	req := sandboxinit.Request{
		WorkDir:        spec.WorkDir,
		Cmd:            spec.Cmd,
		Env:            spec.Env,
		SeccompProfile: spec.SeccompProfile,
	}
	if stream {
		req.StdinPath = spec.StdinPath
		req.StdoutPath = spec.StdoutPath
		req.StderrPath = spec.StderrPath
	}
	if spec.TimeoutSec > 0 {
		req.Limits.CPUSeconds = uint64(spec.TimeoutSec) + 1
	}
	if spec.MemoryMB > 0 {
		req.Limits.MemoryBytes = uint64(spec.MemoryMB) * 1024 * 1024
	}
	if spec.FSizeBytes > 0 {
		req.Limits.FSizeBytes = uint64(spec.FSizeBytes)
	}
	return req
}

// encodeRequest serializes the request into a pipe whose read end becomes
// fd 3 in the helper.
func encodeRequest(req sandboxinit.Request) (*os.File, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		enc := json.NewEncoder(writer)
		_ = enc.Encode(req)
		_ = writer.Close()
	}()
	return reader, nil
}

func exitStatus(state *os.ProcessState, waitErr error) (int, string) {
	if state == nil {
		if waitErr != nil {
			return -1, ""
		}
		return 0, ""
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return state.ExitCode(), ""
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
