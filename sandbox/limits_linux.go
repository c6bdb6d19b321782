//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/moby/sys/reexec"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

// rlimitShimName is the argv[0] under which the binary re-executes itself to
// apply limits before exec'ing the target. Binaries and test mains must call
// reexec.Init first thing.
const rlimitShimName = "polyrun-rlimit"

// statusFD is where the shim reports failures; it is close-on-exec, so a
// successful exec of the target reads as EOF in the parent.
const statusFD = 3

const shimFailureExitCode = 127

func init() {
	reexec.Register(rlimitShimName, rlimitShim)
}

// RlimitLimiter applies ResourceLimits with setrlimit(2) inside the child,
// between fork and the exec of the target program.
type RlimitLimiter struct{}

// NewRlimitLimiter creates the POSIX ResourceLimiter.
func NewRlimitLimiter() *RlimitLimiter {
	return &RlimitLimiter{}
}

// Start implements ResourceLimiter.
func (RlimitLimiter) Start(spec ProcessSpec, limits *ResourceLimits) (*exec.Cmd, error) {
	if limits == nil {
		return Unlimited{}.Start(spec, nil)
	}

	path, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return nil, err
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create status pipe: %w", err)
	}
	defer statusR.Close()

	args := []string{
		rlimitShimName,
		"--memory-mb=" + strconv.Itoa(limits.MemoryMB),
		"--cpu-seconds=" + strconv.Itoa(limits.CPUSeconds),
		"--max-processes=" + strconv.Itoa(limits.MaxProcesses),
		"--",
		path,
	}
	args = append(args, spec.Argv...)

	cmd := reexec.Command(args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.ExtraFiles = []*os.File{statusW}
	setProcessGroup(cmd)

	startErr := cmd.Start()
	statusW.Close()
	if startErr != nil {
		return nil, startErr
	}

	status, _ := io.ReadAll(statusR)
	if len(status) > 0 {
		_ = killProcessGroup(cmd.Process.Pid)
		_ = cmd.Wait()
		return nil, fmt.Errorf("failed to apply resource limits: %s", status)
	}

	return cmd, nil
}

// rlimitShim runs in the re-executed child. Arguments after "--" are the
// resolved target path followed by its argv.
func rlimitShim() {
	status := os.NewFile(statusFD, "status")
	fail := func(format string, args ...any) {
		fmt.Fprintf(status, format, args...)
		os.Exit(shimFailureExitCode)
	}

	flags := pflag.NewFlagSet(rlimitShimName, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	memoryMB := flags.Int("memory-mb", 0, "address space ceiling in MiB")
	cpuSeconds := flags.Int("cpu-seconds", 0, "CPU time ceiling in seconds")
	maxProcesses := flags.Int("max-processes", 0, "process and thread ceiling")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fail("invalid shim arguments: %v", err)
	}

	target := flags.Args()
	if len(target) < 2 {
		fail("missing target command")
	}

	limits := ResourceLimits{MemoryMB: *memoryMB, CPUSeconds: *cpuSeconds, MaxProcesses: *maxProcesses}
	if err := applyRlimits(limits); err != nil {
		fail("%v", err)
	}

	if _, err := unix.FcntlInt(statusFD, unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		fail("failed to mark status pipe close-on-exec: %v", err)
	}

	err := unix.Exec(target[0], target[1:], os.Environ())
	fail("failed to exec %s: %v", target[0], err)
}

// applyRlimits sets the ceilings on the current process. The address space
// ceiling goes last since it may starve the Go runtime of fresh mappings.
func applyRlimits(limits ResourceLimits) error {
	if err := lowerRlimit(unix.RLIMIT_CORE, 0, 0); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}

	if limits.MaxProcesses > 0 {
		n := uint64(limits.MaxProcesses)
		if err := lowerRlimit(unix.RLIMIT_NPROC, n, n); err != nil {
			return fmt.Errorf("failed to limit processes: %w", err)
		}
	}

	if limits.CPUSeconds > 0 {
		// SIGXCPU at the soft limit, SIGKILL one second later
		soft := uint64(limits.CPUSeconds)
		if err := lowerRlimit(unix.RLIMIT_CPU, soft, soft+1); err != nil {
			return fmt.Errorf("failed to limit cpu time: %w", err)
		}
	}

	if limits.MemoryMB > 0 {
		bytes := uint64(limits.MemoryMB) << 20
		if err := lowerRlimit(unix.RLIMIT_AS, bytes, bytes); err != nil {
			return fmt.Errorf("failed to limit address space: %w", err)
		}
	}

	return nil
}

// lowerRlimit sets resource to (soft, hard), clamped to the current hard
// limit because an unprivileged process may only lower it.
func lowerRlimit(resource int, soft, hard uint64) error {
	var current unix.Rlimit
	if err := unix.Getrlimit(resource, &current); err != nil {
		return err
	}

	hard = min(hard, current.Max)
	soft = min(soft, hard)

	return unix.Setrlimit(resource, &unix.Rlimit{Cur: soft, Max: hard})
}

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	// the child must not outlive a crashed server
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// killProcessGroup sends SIGKILL to every member of the group led by pid.
func killProcessGroup(pid int) error {
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// exitStatus maps the wait status to an exit code; death by signal n is
// reported as 128+n like a POSIX shell does.
func exitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
