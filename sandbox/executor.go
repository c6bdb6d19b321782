package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/polyrun/languages"
	"github.com/isdmx/polyrun/metrics"
)

// Bounds are the request limits enforced before any resource is touched.
type Bounds struct {
	MaxTimeoutSec  int
	MaxSourceBytes int
	MaxProcesses   int
}

// DefaultBounds mirrors the configuration defaults.
var DefaultBounds = Bounds{
	MaxTimeoutSec:  60,
	MaxSourceBytes: 1 << 20,
	MaxProcesses:   256,
}

// Executor implements SandboxExecutor on local processes: one workspace, an
// optional compile stage and one resource-limited run per request.
type Executor struct {
	logger     *zap.Logger
	registry   *languages.Registry
	workspaces *WorkspaceManager
	compiler   *Compiler
	runner     ProcessRunner
	bounds     Bounds
	env        EnvPolicy
}

// ExecutorOption defines a functional option for Executor
type ExecutorOption func(*Executor)

// WithBounds sets the request bounds for Executor
func WithBounds(bounds Bounds) ExecutorOption {
	return func(e *Executor) {
		e.bounds = bounds
	}
}

// WithCompiler sets the Compiler for Executor
func WithCompiler(compiler *Compiler) ExecutorOption {
	return func(e *Executor) {
		e.compiler = compiler
	}
}

// WithEnvPolicy sets the environment policy for run-stage processes
func WithEnvPolicy(env EnvPolicy) ExecutorOption {
	return func(e *Executor) {
		e.env = env
	}
}

// NewExecutor creates an Executor. Unless WithCompiler is given, the compile
// stage goes through runner with DefaultCompileTimeout and the executor's
// environment policy.
func NewExecutor(logger *zap.Logger, registry *languages.Registry, workspaces *WorkspaceManager, runner ProcessRunner, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:     logger,
		registry:   registry,
		workspaces: workspaces,
		runner:     runner,
		bounds:     DefaultBounds,
		env:        DefaultEnvPolicy,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.compiler == nil {
		e.compiler = NewCompiler(logger, runner, DefaultCompileTimeout, WithCompilerEnv(e.env))
	}

	return e
}

// attempt is the progress of one execution: its lifecycle and the stage it
// is in. A panic anywhere in Execute is reported against it.
type attempt struct {
	base  Outcome
	lc    *lifecycle
	stage Stage
	log   *zap.Logger
}

func newAttempt(id, language string, log *zap.Logger) *attempt {
	return &attempt{
		base:  Outcome{ExecutionID: id, Language: language},
		lc:    newLifecycle(),
		stage: StageSetup,
		log:   log,
	}
}

// enter moves the lifecycle to state. An illegal move is a pipeline bug and
// ends the execution as a fault.
func (a *attempt) enter(state State) (Outcome, bool) {
	if err := a.lc.transition(state); err != nil {
		return a.fault(err), false
	}
	return Outcome{}, true
}

func (a *attempt) fault(err error) Outcome {
	if terr := a.lc.transition(StateFaulted); terr != nil {
		a.log.Warn("fault after terminal state", zap.String("state", string(a.lc.State())), zap.Error(terr))
	}
	a.log.Error("execution fault", zap.String("stage", string(a.stage)), zap.Error(err))

	o := a.base
	o.Kind = OutcomeFault
	o.Stage = a.stage
	o.Err = err
	return o
}

// Execute runs req and always returns a well-formed result.
func (e *Executor) Execute(ctx context.Context, req ExecutionRequest) (result ExecutionResult) {
	id := uuid.NewString()
	log := e.logger.With(zap.String("execution_id", id), zap.String("language", req.Language))
	start := time.Now()

	log.Info("execution requested",
		zap.Int("code_bytes", len(req.Code)),
		zap.Int("stdin_bytes", len(req.Stdin)),
		zap.Int("timeout_sec", req.TimeoutSec))

	at := newAttempt(id, req.Language, log)
	defer func() {
		if r := recover(); r != nil {
			result = Assemble(at.fault(fmt.Errorf("panic: %v", r)))
		}
		e.finish(result, start, log)
	}()

	return Assemble(e.execute(ctx, req, at))
}

func (e *Executor) finish(result ExecutionResult, start time.Time, log *zap.Logger) {
	outcome := string(result.Error)
	if result.Success {
		outcome = "success"
	}
	metrics.ExecutionsTotal.WithLabelValues(metricLanguage(result), outcome).Inc()
	metrics.StageDuration.WithLabelValues(metricLanguage(result), metrics.PhaseTotal).Observe(time.Since(start).Seconds())

	log.Info("execution finished",
		zap.Bool("success", result.Success),
		zap.String("stage", string(result.Stage)),
		zap.String("error", string(result.Error)),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("elapsed", time.Since(start)))
}

func (e *Executor) execute(ctx context.Context, req ExecutionRequest, at *attempt) Outcome {
	log := at.log

	spec, timeoutSec, err := e.validate(req)
	if err != nil {
		log.Info("execution rejected", zap.Error(err))
		o := at.base
		o.Kind = OutcomeRejected
		o.Err = err
		o.ErrorKind = ErrorInvalidRequest
		if errors.Is(err, languages.ErrUnsupportedLanguage) {
			o.ErrorKind = ErrorUnsupportedLanguage
		}
		return o
	}

	ws, err := e.workspaces.Acquire()
	if err != nil {
		return at.fault(err)
	}
	metrics.InFlight.Inc()
	defer func() {
		metrics.InFlight.Dec()
		e.workspaces.Release(ws)
	}()

	var argv []string
	if spec.Compiled {
		at.stage = StageCompile
		if o, ok := at.enter(StateCompiling); !ok {
			return o
		}

		compileStart := time.Now()
		artifact, err := e.compiler.Compile(ctx, ws, req.Code, spec)
		metrics.StageDuration.WithLabelValues(spec.ID, metrics.PhaseCompile).Observe(time.Since(compileStart).Seconds())

		var compileErr *CompileError
		if errors.As(err, &compileErr) {
			if o, ok := at.enter(StateCompileFailed); !ok {
				return o
			}
			log.Info("compilation failed", zap.Int("exit_code", compileErr.ExitCode), zap.Bool("timed_out", compileErr.TimedOut))
			o := at.base
			o.Kind = OutcomeCompileFailed
			o.Compile = compileErr
			return o
		}
		if err != nil {
			return at.fault(err)
		}
		argv = artifact.RunArgv(ws, spec)
	} else {
		sourcePath, err := ws.WriteFile(spec.SourceFile(), []byte(req.Code))
		if err != nil {
			return at.fault(err)
		}
		argv = ExpandCommand(spec.RunCommand, map[string]string{
			languages.PlaceholderSource: sourcePath,
			languages.PlaceholderDir:    ws.Dir,
		})
	}

	at.stage = StageRun
	if o, ok := at.enter(StateRunning); !ok {
		return o
	}

	run, err := e.runner.Run(ctx, RunSpec{
		Argv:    argv,
		Dir:     ws.Dir,
		Env:     e.env.Environment(spec, ws.Dir),
		Stdin:   req.Stdin,
		Timeout: time.Duration(timeoutSec) * time.Second,
		Limits: &ResourceLimits{
			MemoryMB:     spec.MemoryLimitMB,
			CPUSeconds:   timeoutSec,
			MaxProcesses: e.bounds.MaxProcesses,
		},
	})
	if err != nil {
		return at.fault(err)
	}
	metrics.StageDuration.WithLabelValues(spec.ID, metrics.PhaseRun).Observe(run.Duration.Seconds())
	if run.Truncated {
		metrics.OutputTruncations.WithLabelValues(spec.ID).Inc()
	}

	o := at.base
	o.Run = run
	o.TimeoutSec = timeoutSec
	o.Kind = OutcomeCompleted
	final := StateCompleted
	switch {
	case run.TimedOut:
		o.Kind = OutcomeTimedOut
		final = StateTimedOut
	case run.ExitCode != 0:
		final = StateRuntimeError
	}
	if fo, ok := at.enter(final); !ok {
		return fo
	}
	return o
}

// validate checks req against the registry and bounds and returns the
// language spec with the effective run timeout.
func (e *Executor) validate(req ExecutionRequest) (languages.LanguageSpec, int, error) {
	spec, err := e.registry.Lookup(req.Language)
	if err != nil {
		return languages.LanguageSpec{}, 0, err
	}

	if strings.TrimSpace(req.Code) == "" {
		return languages.LanguageSpec{}, 0, fmt.Errorf("%w: code must not be empty", ErrInvalidRequest)
	}

	if len(req.Code) > e.bounds.MaxSourceBytes {
		return languages.LanguageSpec{}, 0, fmt.Errorf("%w: code is %d bytes, limit is %d", ErrInvalidRequest, len(req.Code), e.bounds.MaxSourceBytes)
	}

	timeoutSec := req.TimeoutSec
	if timeoutSec == 0 {
		timeoutSec = min(spec.DefaultTimeoutSec, e.bounds.MaxTimeoutSec)
	}
	if timeoutSec < 1 || timeoutSec > e.bounds.MaxTimeoutSec {
		return languages.LanguageSpec{}, 0, fmt.Errorf("%w: timeout must be between 1 and %d seconds, got %d", ErrInvalidRequest, e.bounds.MaxTimeoutSec, req.TimeoutSec)
	}

	return spec, timeoutSec, nil
}

// metricLanguage keeps label cardinality bounded when callers send garbage ids.
func metricLanguage(result ExecutionResult) string {
	if result.Error == ErrorUnsupportedLanguage {
		return "unsupported"
	}
	return result.Language
}
