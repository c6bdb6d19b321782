package sandbox

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/isdmx/polyrun/languages"
)

func TestAssembleCompleted(t *testing.T) {
	result := Assemble(Outcome{
		Kind:        OutcomeCompleted,
		ExecutionID: "id-1",
		Language:    "python",
		Run: RunOutcome{
			Stdout:   "Python works!\n",
			ExitCode: 0,
			Duration: 1234567 * time.Microsecond,
		},
	})

	assert.Equal(t, ExecutionResult{
		ExecutionID:   "id-1",
		Language:      "python",
		Success:       true,
		Stdout:        "Python works!\n",
		ExitCode:      0,
		ExecutionTime: 1.235,
		Stage:         StageRun,
	}, result)
}

func TestAssembleRuntimeFailure(t *testing.T) {
	result := Assemble(Outcome{
		Kind: OutcomeCompleted,
		Run:  RunOutcome{Stderr: "Traceback", ExitCode: 1},
	})

	assert.False(t, result.Success)
	assert.Equal(t, StageRun, result.Stage)
	assert.Equal(t, ErrorRuntimeFailure, result.Error)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Traceback", result.Stderr)
}

func TestAssembleTimedOut(t *testing.T) {
	result := Assemble(Outcome{
		Kind:       OutcomeTimedOut,
		TimeoutSec: 2,
		Run:        RunOutcome{Stdout: "partial", Stderr: "ignored", ExitCode: 137, TimedOut: true, Duration: 2 * time.Second},
	})

	assert.False(t, result.Success)
	assert.True(t, result.TimedOut)
	assert.Equal(t, "Execution timeout (2s exceeded)", result.Stderr)
	assert.Equal(t, "partial", result.Stdout)
	assert.Equal(t, ErrorTimeout, result.Error)
	assert.Equal(t, StageRun, result.Stage)
	assert.InDelta(t, 2.0, result.ExecutionTime, 0.001)
}

func TestAssembleCompileFailed(t *testing.T) {
	result := Assemble(Outcome{
		Kind:    OutcomeCompileFailed,
		Compile: &CompileError{Stderr: "main.cpp:1: error: expected ';'", ExitCode: 1},
	})

	assert.False(t, result.Success)
	assert.Equal(t, StageCompile, result.Stage)
	assert.Equal(t, ErrorCompileFailure, result.Error)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Stderr, "expected ';'")
	assert.Empty(t, result.Stdout)
}

func TestAssembleRejected(t *testing.T) {
	result := Assemble(Outcome{
		Kind:      OutcomeRejected,
		Language:  "cobol",
		Err:       fmt.Errorf("%w: %q", languages.ErrUnsupportedLanguage, "cobol"),
		ErrorKind: ErrorUnsupportedLanguage,
	})

	assert.False(t, result.Success)
	assert.Equal(t, StageValidate, result.Stage)
	assert.Equal(t, ErrorUnsupportedLanguage, result.Error)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "cobol")
}

func TestAssembleFault(t *testing.T) {
	t.Run("KeepsStage", func(t *testing.T) {
		result := Assemble(Outcome{Kind: OutcomeFault, Stage: StageCompile, Err: errors.New("javac not found")})

		assert.False(t, result.Success)
		assert.Equal(t, StageCompile, result.Stage)
		assert.Equal(t, ErrorInternalFault, result.Error)
		assert.Equal(t, "Execution error: javac not found", result.Stderr)
	})

	t.Run("DefaultsToSetup", func(t *testing.T) {
		result := Assemble(Outcome{Kind: OutcomeFault})

		assert.Equal(t, StageSetup, result.Stage)
		assert.Equal(t, "Execution error: unknown error", result.Stderr)
	})
}
