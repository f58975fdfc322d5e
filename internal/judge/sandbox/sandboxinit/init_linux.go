//go:build linux

package sandboxinit

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

const defaultOpenFiles = 64

// Run reads a Request from RequestFD, applies working directory, rlimits and
// stdio redirection, then execs the target command. preExec, when non-nil,
// runs last before exec; the seccomp filter hooks in there so this package
// stays cgo-free. Run only returns on error.
func Run(preExec func(Request) error) error {
	req, err := readRequest()
	if err != nil {
		return err
	}
	if len(req.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if err := os.Chdir(req.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}
	if err := redirectIO(req); err != nil {
		return err
	}
	if preExec != nil {
		if err := preExec(req); err != nil {
			return err
		}
	}

	env := req.Env
	if len(env) == 0 {
		env = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	}
	cmdPath, err := exec.LookPath(req.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, req.Cmd, env)
}

func readRequest() (Request, error) {
	file := os.NewFile(uintptr(RequestFD), "sandbox-init-request")
	if file == nil {
		return Request{}, fmt.Errorf("request fd %d not inherited", RequestFD)
	}
	defer file.Close()
	var req Request
	if err := json.NewDecoder(file).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func applyRlimits(limits Rlimits) error {
	if limits.CPUSeconds > 0 {
		if err := setrlimit(unix.RLIMIT_CPU, limits.CPUSeconds, "cpu"); err != nil {
			return err
		}
	}
	if limits.MemoryBytes > 0 {
		if err := setrlimit(unix.RLIMIT_AS, limits.MemoryBytes, "as"); err != nil {
			return err
		}
		if err := setrlimit(unix.RLIMIT_DATA, limits.MemoryBytes, "data"); err != nil {
			return err
		}
	}
	if limits.FSizeBytes > 0 {
		if err := setrlimit(unix.RLIMIT_FSIZE, limits.FSizeBytes, "fsize"); err != nil {
			return err
		}
	}
	openFiles := limits.OpenFiles
	if openFiles == 0 {
		openFiles = defaultOpenFiles
	}
	if err := setrlimit(unix.RLIMIT_NOFILE, openFiles, "nofile"); err != nil {
		return err
	}
	return setrlimit(unix.RLIMIT_CORE, 0, "core")
}

func setrlimit(resource int, value uint64, name string) error {
	if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
		return fmt.Errorf("set rlimit %s: %w", name, err)
	}
	return nil
}

func redirectIO(req Request) error {
	if req.StdinPath != "" {
		file, err := os.Open(req.StdinPath)
		if err != nil {
			return fmt.Errorf("open stdin: %w", err)
		}
		if err := dupOnto(file, os.Stdin); err != nil {
			return err
		}
	}
	if req.StdoutPath != "" {
		file, err := os.OpenFile(req.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("open stdout: %w", err)
		}
		if err := dupOnto(file, os.Stdout); err != nil {
			return err
		}
	}
	if req.StderrPath != "" {
		file, err := os.OpenFile(req.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("open stderr: %w", err)
		}
		if err := dupOnto(file, os.Stderr); err != nil {
			return err
		}
	}
	return nil
}

func dupOnto(src *os.File, dst *os.File) error {
	if err := unix.Dup2(int(src.Fd()), int(dst.Fd())); err != nil {
		return fmt.Errorf("dup %s: %w", dst.Name(), err)
	}
	return src.Close()
}
