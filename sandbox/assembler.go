package sandbox

import (
	"fmt"
	"time"
)

// OutcomeKind tags which fields of an Outcome are meaningful.
type OutcomeKind int

const (
	// OutcomeCompleted: the program ran and exited on its own (Run).
	OutcomeCompleted OutcomeKind = iota
	// OutcomeTimedOut: the run deadline fired (Run, TimeoutSec).
	OutcomeTimedOut
	// OutcomeCompileFailed: the toolchain rejected the source (Compile).
	OutcomeCompileFailed
	// OutcomeRejected: validation failed before any resource was used (Err, ErrorKind).
	OutcomeRejected
	// OutcomeFault: infrastructure failed at Stage (Err).
	OutcomeFault
)

// Outcome is everything the pipeline learned about one execution.
type Outcome struct {
	Kind        OutcomeKind
	ExecutionID string
	Language    string
	Stage       Stage

	Run        RunOutcome
	TimeoutSec int
	Compile    *CompileError
	Err        error
	ErrorKind  ErrorKind
}

// Assemble maps an outcome to the caller-facing result. It is pure.
func Assemble(o Outcome) ExecutionResult {
	result := ExecutionResult{
		ExecutionID: o.ExecutionID,
		Language:    o.Language,
		ExitCode:    -1,
		Stage:       o.Stage,
	}

	switch o.Kind {
	case OutcomeCompleted:
		result.Stage = StageRun
		result.Success = o.Run.ExitCode == 0
		result.Stdout = o.Run.Stdout
		result.Stderr = o.Run.Stderr
		result.ExitCode = o.Run.ExitCode
		result.ExecutionTime = seconds(o.Run.Duration)
		if !result.Success {
			result.Error = ErrorRuntimeFailure
		}

	case OutcomeTimedOut:
		result.Stage = StageRun
		result.TimedOut = true
		result.Stdout = o.Run.Stdout
		result.Stderr = fmt.Sprintf("Execution timeout (%ds exceeded)", o.TimeoutSec)
		result.ExitCode = o.Run.ExitCode
		result.ExecutionTime = seconds(o.Run.Duration)
		result.Error = ErrorTimeout

	case OutcomeCompileFailed:
		result.Stage = StageCompile
		result.Error = ErrorCompileFailure
		if o.Compile != nil {
			result.Stderr = o.Compile.Stderr
			result.ExitCode = o.Compile.ExitCode
		}

	case OutcomeRejected:
		result.Stage = StageValidate
		result.Error = o.ErrorKind
		if result.Error == ErrorNone {
			result.Error = ErrorInvalidRequest
		}
		result.Stderr = errorMessage(o.Err)

	default:
		if result.Stage == "" {
			result.Stage = StageSetup
		}
		result.Error = ErrorInternalFault
		result.Stderr = "Execution error: " + errorMessage(o.Err)
	}

	return result
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func seconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
