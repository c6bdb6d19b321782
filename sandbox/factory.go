package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/languages"
)

// NewWorkspaceManagerFromConfig creates the WorkspaceManager described by cfg.
func NewWorkspaceManagerFromConfig(logger *zap.Logger, cfg *config.Config) *WorkspaceManager {
	return NewWorkspaceManager(logger, cfg.Sandbox.ScratchRoot, cfg.Sandbox.WorkspacePrefix)
}

// NewExecutorFromConfig wires the runner, compiler and executor described by cfg.
func NewExecutorFromConfig(logger *zap.Logger, cfg *config.Config, registry *languages.Registry, workspaces *WorkspaceManager) *Executor {
	var limiter ResourceLimiter = NewRlimitLimiter()
	if !cfg.Sandbox.EnforceLimits {
		logger.Warn("resource limits disabled; untrusted code runs without memory, cpu or process ceilings")
		limiter = Unlimited{}
	}

	env := EnvPolicy{Inherit: cfg.Sandbox.InheritEnv}
	runner := NewRunner(logger, limiter, WithMaxOutputBytes(cfg.Sandbox.MaxOutputBytes))
	compiler := NewCompiler(logger, runner, cfg.CompileTimeout(), WithCompilerEnv(env))

	return NewExecutor(logger, registry, workspaces, runner,
		WithCompiler(compiler),
		WithEnvPolicy(env),
		WithBounds(Bounds{
			MaxTimeoutSec:  cfg.Sandbox.MaxTimeoutSec,
			MaxSourceBytes: cfg.Sandbox.MaxSourceBytes,
			MaxProcesses:   cfg.Sandbox.MaxProcesses,
		}),
	)
}
