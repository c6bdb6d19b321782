package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrInvalidRequest marks requests rejected by bounds validation.
var ErrInvalidRequest = errors.New("invalid request")

// ExecutionRequest represents the parameters for code execution
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	// TimeoutSec overrides the language default when positive.
	TimeoutSec int    `json:"timeout,omitempty"`
	Stdin      string `json:"stdin,omitempty"`
}

// Stage names the pipeline step an execution ended in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageSetup    Stage = "setup"
	StageCompile  Stage = "compile"
	StageRun      Stage = "run"
)

// ErrorKind classifies unsuccessful executions. It is empty on success.
type ErrorKind string

const (
	ErrorNone                ErrorKind = ""
	ErrorInvalidRequest      ErrorKind = "invalid_request"
	ErrorUnsupportedLanguage ErrorKind = "unsupported_language"
	ErrorCompileFailure      ErrorKind = "compile_failure"
	ErrorTimeout             ErrorKind = "timeout"
	ErrorRuntimeFailure      ErrorKind = "runtime_failure"
	ErrorInternalFault       ErrorKind = "internal_fault"
)

// ExecutionResult represents the result of code execution
type ExecutionResult struct {
	ExecutionID   string    `json:"execution_id"`
	Language      string    `json:"language"`
	Success       bool      `json:"success"`
	Stdout        string    `json:"stdout"`
	Stderr        string    `json:"stderr"`
	ExitCode      int       `json:"exit_code"`
	ExecutionTime float64   `json:"execution_time"`
	TimedOut      bool      `json:"timed_out"`
	Stage         Stage     `json:"stage"`
	Error         ErrorKind `json:"error,omitempty"`
}

// SandboxExecutor defines the interface for sandbox execution. Execute never
// fails: every problem is reported inside the result.
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	RemoveAll(path string) error
	ReadDir(name string) ([]os.DirEntry, error)
	Chmod(name string, mode os.FileMode) error
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

func (RealFileSystem) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (RealFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// File permission constants
const (
	RootPermission      = 0o711
	WorkspacePermission = 0o700
	FilePermission      = 0o600
)
