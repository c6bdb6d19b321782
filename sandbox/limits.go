package sandbox

import (
	"errors"
	"io"
	"os/exec"
)

// ErrUnsupportedPlatform is returned by process launching on platforms
// without POSIX process groups and resource limits.
var ErrUnsupportedPlatform = errors.New("process sandboxing is only supported on Linux")

// ResourceLimits are the OS ceilings applied to a child before the target
// program starts. Zero fields are not enforced.
type ResourceLimits struct {
	MemoryMB     int
	CPUSeconds   int
	MaxProcesses int
}

// ProcessSpec describes a process to launch.
type ProcessSpec struct {
	// Argv[0] must be an absolute path or resolvable through PATH.
	Argv   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ResourceLimiter starts processes with resource ceilings in effect.
//
// The returned command has been started as the leader of a new process group
// and is ready for Wait. A nil limits value starts the process unconstrained.
type ResourceLimiter interface {
	Start(spec ProcessSpec, limits *ResourceLimits) (*exec.Cmd, error)
}

// Unlimited starts processes in their own process group without ceilings.
// It serves the compile stage and deployments that disable enforcement.
type Unlimited struct{}

// Start implements ResourceLimiter.
func (Unlimited) Start(spec ProcessSpec, _ *ResourceLimits) (*exec.Cmd, error) {
	path, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return nil, err
	}

	cmd := &exec.Cmd{
		Path:   path,
		Args:   spec.Argv,
		Dir:    spec.Dir,
		Env:    spec.Env,
		Stdin:  spec.Stdin,
		Stdout: spec.Stdout,
		Stderr: spec.Stderr,
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
