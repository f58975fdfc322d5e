//go:build !linux

package sandbox

import (
	"context"

	appErr "intcode/pkg/errors"
)

type stubRunner struct{}

// NewRunner returns a runner whose executions always fail; the sandbox needs
// Linux rlimits and process groups.
func NewRunner(Config) (Runner, error) {
	return stubRunner{}, nil
}

func (stubRunner) Run(context.Context, Spec) (Result, error) {
	return Result{}, appErr.New(appErr.SandboxUnsupported).WithMessage("sandbox requires linux")
}

func (stubRunner) RunStream(context.Context, Spec) (Result, error) {
	return Result{}, appErr.New(appErr.SandboxUnsupported).WithMessage("sandbox requires linux")
}
