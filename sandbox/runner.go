package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for NewRunner.
const (
	DefaultMaxOutputBytes = 1 << 20
	DefaultWaitDelay      = 500 * time.Millisecond
)

// RunSpec describes one bounded process execution.
type RunSpec struct {
	Argv    []string
	Dir     string
	Env     []string
	Stdin   string
	Timeout time.Duration
	// Limits is nil for trusted toolchains.
	Limits *ResourceLimits
}

// RunOutcome is what the runner observed.
type RunOutcome struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
}

// ProcessRunner runs a process to completion or until its deadline.
type ProcessRunner interface {
	Run(ctx context.Context, spec RunSpec) (RunOutcome, error)
}

// Runner is the resource-limited ProcessRunner. Each child leads its own
// process group; on deadline or cancellation the whole group is killed.
type Runner struct {
	logger         *zap.Logger
	limiter        ResourceLimiter
	maxOutputBytes int
	waitDelay      time.Duration
}

// RunnerOption defines a functional option for Runner
type RunnerOption func(*Runner)

// WithMaxOutputBytes caps each captured stream
func WithMaxOutputBytes(n int) RunnerOption {
	return func(r *Runner) {
		r.maxOutputBytes = n
	}
}

// WithWaitDelay bounds how long output pipes held open by escaped
// descendants are drained after the group leader exits
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// NewRunner creates a Runner launching processes through limiter.
func NewRunner(logger *zap.Logger, limiter ResourceLimiter, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:         logger,
		limiter:        limiter,
		maxOutputBytes: DefaultMaxOutputBytes,
		waitDelay:      DefaultWaitDelay,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts spec.Argv and waits for it, for at most spec.Timeout. A non-nil
// error means the process could not be run at all; everything the process
// itself did is reported in the outcome.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (RunOutcome, error) {
	if len(spec.Argv) == 0 {
		return RunOutcome{}, errors.New("no command provided")
	}
	if spec.Timeout <= 0 {
		return RunOutcome{}, fmt.Errorf("timeout must be positive, got %s", spec.Timeout)
	}

	stdout := newCappedBuffer(r.maxOutputBytes)
	stderr := newCappedBuffer(r.maxOutputBytes)
	process := ProcessSpec{
		Argv:   spec.Argv,
		Dir:    spec.Dir,
		Env:    spec.Env,
		Stdout: stdout,
		Stderr: stderr,
	}
	if spec.Stdin != "" {
		process.Stdin = strings.NewReader(spec.Stdin)
	}

	start := time.Now()
	cmd, err := r.limiter.Start(process, spec.Limits)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("failed to start %s: %w", spec.Argv[0], err)
	}
	cmd.WaitDelay = r.waitDelay
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		r.logger.Debug("deadline exceeded, killing process group",
			zap.Int("pid", pid), zap.Duration("timeout", spec.Timeout))
		r.kill(cmd, pid)
		waitErr = <-done
	case <-ctx.Done():
		timedOut = true
		r.logger.Debug("execution cancelled, killing process group",
			zap.Int("pid", pid), zap.Error(ctx.Err()))
		r.kill(cmd, pid)
		waitErr = <-done
	}
	duration := time.Since(start)

	// reap descendants that outlived the leader
	_ = killProcessGroup(pid)

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return RunOutcome{}, fmt.Errorf("failed to wait for %s: %w", spec.Argv[0], waitErr)
		}
	}

	return RunOutcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitStatus(cmd.ProcessState),
		Duration:  duration,
		TimedOut:  timedOut,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}, nil
}

func (r *Runner) kill(cmd *exec.Cmd, pid int) {
	if err := killProcessGroup(pid); err != nil {
		r.logger.Warn("failed to kill process group, killing leader only", zap.Int("pid", pid), zap.Error(err))
		_ = cmd.Process.Kill()
	}
}
