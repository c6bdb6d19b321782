// Package sandbox provides bounded execution of untrusted code.
//
// An Executor takes one ExecutionRequest through a fixed pipeline: the
// request is validated against the language registry and bounds, a private
// Workspace is acquired, compiled languages go through the Compiler, the
// program is started by the Runner under OS resource ceilings, and the
// observations are mapped to an ExecutionResult by Assemble. The workspace
// is removed before Execute returns on every path.
//
// Resource ceilings (address space, CPU time, process count, no core dumps)
// are applied by a ResourceLimiter. The Linux implementation re-executes the
// current binary as a small shim that calls setrlimit and then execs the
// target, so every binary embedding this package must start with:
//
//	if reexec.Init() {
//	    return
//	}
//
// Every child leads its own process group; a deadline kills the whole group.
//
// Usage:
//
//	executor := sandbox.NewExecutorFromConfig(logger, cfg, registry, workspaces)
//	result := executor.Execute(ctx, sandbox.ExecutionRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
