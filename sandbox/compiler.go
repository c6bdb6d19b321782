package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/polyrun/languages"
)

// DefaultCompileTimeout is the toolchain ceiling, independent of the
// caller's run timeout.
const DefaultCompileTimeout = 30 * time.Second

// Artifact names inside the workspace.
const (
	nativeBinaryName = "main"
	monoAssemblyName = "main.exe"
	jvmClassDirName  = "classes"
)

// CompiledArtifact is the runnable output of the compile stage. For the JVM
// toolchain BinaryPath is the class directory and EntrySymbol the main class.
type CompiledArtifact struct {
	SourcePath  string
	BinaryPath  string
	EntrySymbol string
}

// CompileError reports a toolchain that rejected the source.
type CompileError struct {
	Stderr   string
	ExitCode int
	TimedOut bool
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return "compilation timed out"
	}
	return fmt.Sprintf("compilation failed with exit code %d", e.ExitCode)
}

// Compiler runs language toolchains inside a workspace.
type Compiler struct {
	logger  *zap.Logger
	runner  ProcessRunner
	timeout time.Duration
	env     EnvPolicy
}

// CompilerOption defines a functional option for Compiler
type CompilerOption func(*Compiler)

// WithCompilerEnv sets the environment policy for toolchain processes
func WithCompilerEnv(env EnvPolicy) CompilerOption {
	return func(c *Compiler) {
		c.env = env
	}
}

// NewCompiler creates a Compiler. A non-positive timeout selects
// DefaultCompileTimeout.
func NewCompiler(logger *zap.Logger, runner ProcessRunner, timeout time.Duration, opts ...CompilerOption) *Compiler {
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	c := &Compiler{
		logger:  logger,
		runner:  runner,
		timeout: timeout,
		env:     DefaultEnvPolicy,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compile writes code into ws and builds it with the language toolchain.
// A rejected build yields *CompileError; any other error means the
// toolchain could not be invoked.
func (c *Compiler) Compile(ctx context.Context, ws *Workspace, code string, spec languages.LanguageSpec) (CompiledArtifact, error) {
	if !spec.Compiled {
		return CompiledArtifact{}, fmt.Errorf("language %s has no compile stage", spec.ID)
	}

	sourceName := spec.SourceFile()
	sourcePath, err := ws.WriteFile(sourceName, []byte(code))
	if err != nil {
		return CompiledArtifact{}, err
	}

	artifact := CompiledArtifact{SourcePath: sourcePath}

	if spec.NeedsClassName {
		className, err := ExtractJavaClassName(code)
		if err != nil {
			return CompiledArtifact{}, &CompileError{Stderr: err.Error(), ExitCode: 1}
		}
		if artifact.SourcePath, err = ws.Rename(sourceName, className+spec.SourceExtension); err != nil {
			return CompiledArtifact{}, err
		}
		artifact.EntrySymbol = className
	}

	switch spec.Toolchain {
	case languages.ToolchainNative:
		artifact.BinaryPath = ws.Path(nativeBinaryName)
	case languages.ToolchainMono:
		artifact.BinaryPath = ws.Path(monoAssemblyName)
	case languages.ToolchainJVM:
		if artifact.BinaryPath, err = ws.Mkdir(jvmClassDirName); err != nil {
			return CompiledArtifact{}, err
		}
	default:
		return CompiledArtifact{}, fmt.Errorf("unknown toolchain %q for language %s", spec.Toolchain, spec.ID)
	}

	argv := ExpandCommand(spec.CompileCommand, artifact.commandVars(ws))

	c.logger.Debug("compiling", zap.String("language", spec.ID), zap.Strings("argv", argv))

	outcome, err := c.runner.Run(ctx, RunSpec{
		Argv:    argv,
		Dir:     ws.Dir,
		Env:     c.env.Environment(spec, ws.Dir),
		Timeout: c.timeout,
	})
	if err != nil {
		return CompiledArtifact{}, fmt.Errorf("failed to run %s toolchain: %w", spec.ID, err)
	}

	if outcome.TimedOut {
		return CompiledArtifact{}, &CompileError{
			Stderr:   fmt.Sprintf("Compilation timeout (%ds exceeded)", int(c.timeout.Seconds())),
			ExitCode: outcome.ExitCode,
			TimedOut: true,
		}
	}

	if outcome.ExitCode != 0 {
		// mcs and some javac diagnostics go to stdout
		diagnostics := outcome.Stderr
		if strings.TrimSpace(diagnostics) == "" {
			diagnostics = outcome.Stdout
		}
		return CompiledArtifact{}, &CompileError{Stderr: diagnostics, ExitCode: outcome.ExitCode}
	}

	return artifact, nil
}

// RunArgv returns the run-stage command for a compiled artifact.
func (a CompiledArtifact) RunArgv(ws *Workspace, spec languages.LanguageSpec) []string {
	return ExpandCommand(spec.RunCommand, a.commandVars(ws))
}

func (a CompiledArtifact) commandVars(ws *Workspace) map[string]string {
	return map[string]string{
		languages.PlaceholderSource:   a.SourcePath,
		languages.PlaceholderBinary:   a.BinaryPath,
		languages.PlaceholderClassDir: a.BinaryPath,
		languages.PlaceholderEntry:    a.EntrySymbol,
		languages.PlaceholderDir:      ws.Dir,
	}
}

// ExpandCommand substitutes placeholders in every template argument.
func ExpandCommand(template []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for placeholder, value := range vars {
		pairs = append(pairs, placeholder, value)
	}
	replacer := strings.NewReplacer(pairs...)

	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = replacer.Replace(arg)
	}
	return argv
}
