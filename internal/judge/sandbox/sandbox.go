// Package sandbox runs untrusted commands under resource limits. The parent
// starts a small helper binary which applies rlimits in its own process and
// then execs the target command, so the limits never touch the judge process.
package sandbox

import (
	"bytes"
	"context"
)

const defaultStderrMaxBytes int64 = 64 * 1024

// Spec describes one sandboxed execution.
//
// Two stdio modes exist: captured mode feeds Stdin to the process and
// collects bounded stdout/stderr in memory; stream mode redirects stdio to
// the given files inside the helper. StdinPath/StdoutPath/StderrPath select
// stream mode per descriptor; an empty path keeps the captured behavior.
type Spec struct {
	WorkDir string
	Cmd     []string
	Env     []string

	Stdin      string
	StdinPath  string
	StdoutPath string
	StderrPath string

	// TimeoutSec bounds wall time; CPU time gets one extra second so the
	// kernel limit fires only when the wall timer misses.
	TimeoutSec int
	// MemoryMB caps the address space. Zero means unlimited.
	MemoryMB int64
	// MaxOutputBytes caps captured stdout; excess is discarded, not buffered.
	MaxOutputBytes int64
	// FSizeBytes caps file writes in stream mode via RLIMIT_FSIZE.
	FSizeBytes int64
	// SeccompProfile is an optional path to a syscall allowlist applied by
	// the helper before exec.
	SeccompProfile string
}

// Result is the observed outcome of one execution. A nonzero Signal means
// the process died to that signal and ExitCode is -1.
type Result struct {
	ExitCode int
	Signal   string
	TimedOut bool
	// FileSizeExceeded reports a SIGXFSZ death: the process hit the
	// RLIMIT_FSIZE cap from Spec.FSizeBytes while writing.
	FileSizeExceeded bool
	WallTimeMS       int64
	Stdout           string
	Stderr           string
	StdoutTruncated  bool
}

// Runner executes sandboxed commands.
type Runner interface {
	// Run executes with captured stdio.
	Run(ctx context.Context, spec Spec) (Result, error)
	// RunStream executes with file-redirected stdio per Spec paths.
	RunStream(ctx context.Context, spec Spec) (Result, error)
}

// Config configures a Runner.
type Config struct {
	// HelperPath locates the sandbox-init binary. Defaults to "sandbox-init"
	// resolved via PATH.
	HelperPath string
	// StderrMaxBytes caps captured stderr. Defaults to 64 KiB.
	StderrMaxBytes int64
}

// capWriter keeps the first limit bytes and drops the rest without failing
// the write, so the child never blocks on a full pipe.
type capWriter struct {
	limit     int64
	buf       bytes.Buffer
	truncated bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	remain := w.limit - int64(w.buf.Len())
	if remain <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if int64(len(p)) > remain {
		w.buf.Write(p[:remain])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *capWriter) String() string {
	return w.buf.String()
}
