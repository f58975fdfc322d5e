// Package sandboxinit holds the child-side half of the sandbox: the request
// the parent sends over an inherited pipe and, on Linux, the code that
// applies the limits and execs the target command.
package sandboxinit

// RequestFD is the file descriptor the helper reads its Request from. Using
// fd 3 (the first exec.Cmd ExtraFiles slot) keeps stdin free for the target
// command.
const RequestFD = 3

// Request tells the helper what to exec and under which limits.
type Request struct {
	WorkDir string   `json:"work_dir"`
	Cmd     []string `json:"cmd"`
	Env     []string `json:"env"`

	// Empty paths leave the inherited descriptor in place.
	StdinPath  string `json:"stdin_path"`
	StdoutPath string `json:"stdout_path"`
	StderrPath string `json:"stderr_path"`

	SeccompProfile string  `json:"seccomp_profile"`
	Limits         Rlimits `json:"limits"`
}

// Rlimits are the kernel resource limits applied before exec. Core dumps are
// always disabled; zero values skip the corresponding limit except OpenFiles,
// which defaults to 64.
type Rlimits struct {
	CPUSeconds  uint64 `json:"cpu_seconds"`
	MemoryBytes uint64 `json:"memory_bytes"`
	FSizeBytes  uint64 `json:"fsize_bytes"`
	OpenFiles   uint64 `json:"open_files"`
}
