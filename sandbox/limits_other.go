//go:build !linux

package sandbox

import (
	"os"
	"os/exec"
)

// RlimitLimiter is unavailable outside Linux; Start always fails.
type RlimitLimiter struct{}

// NewRlimitLimiter returns the stub limiter.
func NewRlimitLimiter() *RlimitLimiter {
	return &RlimitLimiter{}
}

// Start implements ResourceLimiter.
func (RlimitLimiter) Start(ProcessSpec, *ResourceLimits) (*exec.Cmd, error) {
	return nil, ErrUnsupportedPlatform
}

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(int) error {
	return ErrUnsupportedPlatform
}

func exitStatus(state *os.ProcessState) int {
	return state.ExitCode()
}
