package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/polyrun/languages"
)

// fakeRunner records every RunSpec and replays canned outcomes in order.
// Once the script is exhausted it succeeds with exit code 0.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []RunSpec
	outcomes []RunOutcome
	errs     []error
	onRun    func(RunSpec)
}

func (f *fakeRunner) Run(_ context.Context, spec RunSpec) (RunOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.calls)
	f.calls = append(f.calls, spec)
	if f.onRun != nil {
		f.onRun(spec)
	}

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.outcomes) {
		return f.outcomes[i], err
	}
	return RunOutcome{}, err
}

func (f *fakeRunner) Calls() []RunSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RunSpec(nil), f.calls...)
}

func lookup(t *testing.T, id string) languages.LanguageSpec {
	t.Helper()
	spec, err := languages.NewRegistry(nil).Lookup(id)
	require.NoError(t, err)
	return spec
}

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	manager := NewWorkspaceManager(zaptest.NewLogger(t), t.TempDir(), "exec-")
	ws, err := manager.Acquire()
	require.NoError(t, err)
	t.Cleanup(func() { manager.Release(ws) })
	return ws
}

func TestCompilerNative(t *testing.T) {
	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)
	ws := newTestWorkspace(t)
	spec := lookup(t, "cpp")

	artifact, err := compiler.Compile(context.Background(), ws, "int main() {}", spec)
	require.NoError(t, err)

	assert.Equal(t, ws.Path("main.cpp"), artifact.SourcePath)
	assert.Equal(t, ws.Path("main"), artifact.BinaryPath)
	assert.FileExists(t, artifact.SourcePath)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"g++", "-O2", "-std=c++17", "-o", ws.Path("main"), ws.Path("main.cpp")}, calls[0].Argv)
	assert.Equal(t, ws.Dir, calls[0].Dir)
	assert.Equal(t, DefaultCompileTimeout, calls[0].Timeout)
	assert.Nil(t, calls[0].Limits, "toolchains run without rlimits")

	assert.Equal(t, []string{ws.Path("main")}, artifact.RunArgv(ws, spec))
}

func TestCompilerGoEnvironment(t *testing.T) {
	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, time.Minute)
	ws := newTestWorkspace(t)

	_, err := compiler.Compile(context.Background(), ws, "package main\nfunc main() {}", lookup(t, "go"))
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Env, "CGO_ENABLED=0")
	assert.Contains(t, calls[0].Env, "HOME="+ws.Dir)
	assert.Equal(t, time.Minute, calls[0].Timeout)
}

func TestCompilerEnvPolicy(t *testing.T) {
	t.Setenv("POLYRUN_API_TOKEN", "secret")
	t.Setenv("JAVA_HOME", "/opt/jdk")

	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0, WithCompilerEnv(EnvPolicy{Inherit: []string{"JAVA_HOME"}}))
	ws := newTestWorkspace(t)

	_, err := compiler.Compile(context.Background(), ws, "int main() {}", lookup(t, "cpp"))
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Env, "JAVA_HOME=/opt/jdk")
	assert.NotContains(t, calls[0].Env, "POLYRUN_API_TOKEN=secret")
}

func TestCompilerMono(t *testing.T) {
	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)
	ws := newTestWorkspace(t)
	spec := lookup(t, "csharp")

	artifact, err := compiler.Compile(context.Background(), ws, "class P { static void Main() {} }", spec)
	require.NoError(t, err)

	assert.Equal(t, ws.Path("main.exe"), artifact.BinaryPath)
	assert.Equal(t, []string{"mono", ws.Path("main.exe")}, artifact.RunArgv(ws, spec))
}

func TestCompilerJava(t *testing.T) {
	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)
	ws := newTestWorkspace(t)
	spec := lookup(t, "java")

	code := "public class Greeter {\n  public static void main(String[] a) { System.out.println(\"hi\"); }\n}"
	artifact, err := compiler.Compile(context.Background(), ws, code, spec)
	require.NoError(t, err)

	assert.Equal(t, "Greeter", artifact.EntrySymbol)
	assert.Equal(t, ws.Path("Greeter.java"), artifact.SourcePath)
	assert.FileExists(t, artifact.SourcePath)
	assert.NoFileExists(t, ws.Path("main.java"))
	assert.DirExists(t, ws.Path("classes"))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"javac", "-d", ws.Path("classes"), ws.Path("Greeter.java")}, calls[0].Argv)

	argv := artifact.RunArgv(ws, spec)
	assert.Equal(t, "java", argv[0])
	assert.Equal(t, []string{"-cp", ws.Path("classes"), "Greeter"}, argv[len(argv)-3:])
}

func TestCompilerJavaWithoutClass(t *testing.T) {
	runner := &fakeRunner{}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)
	ws := newTestWorkspace(t)

	_, err := compiler.Compile(context.Background(), ws, "interface Nope {}", lookup(t, "java"))

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, 1, compileErr.ExitCode)
	assert.Contains(t, compileErr.Stderr, "no class declaration")
	assert.Empty(t, runner.Calls(), "toolchain must not be invoked")
}

func TestCompilerRejectedSource(t *testing.T) {
	t.Run("Stderr", func(t *testing.T) {
		runner := &fakeRunner{outcomes: []RunOutcome{{
			Stderr:   "main.cpp:3:5: error: expected ';' before '}' token",
			ExitCode: 1,
		}}}
		compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)

		_, err := compiler.Compile(context.Background(), newTestWorkspace(t), "int main() { return 0 }", lookup(t, "cpp"))

		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, 1, compileErr.ExitCode)
		assert.False(t, compileErr.TimedOut)
		assert.Contains(t, compileErr.Stderr, "expected ';'")
	})

	t.Run("StdoutFallback", func(t *testing.T) {
		runner := &fakeRunner{outcomes: []RunOutcome{{
			Stdout:   "main.cs(1,9): error CS1525: Unexpected symbol",
			ExitCode: 1,
		}}}
		compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)

		_, err := compiler.Compile(context.Background(), newTestWorkspace(t), "class {", lookup(t, "csharp"))

		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Contains(t, compileErr.Stderr, "CS1525")
	})
}

func TestCompilerTimeout(t *testing.T) {
	runner := &fakeRunner{outcomes: []RunOutcome{{ExitCode: 137, TimedOut: true}}}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 30*time.Second)

	_, err := compiler.Compile(context.Background(), newTestWorkspace(t), "int main() {}", lookup(t, "c"))

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.True(t, compileErr.TimedOut)
	assert.Equal(t, "Compilation timeout (30s exceeded)", compileErr.Stderr)
}

func TestCompilerToolchainUnavailable(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("exec: \"gcc\": executable file not found in $PATH")}}
	compiler := NewCompiler(zaptest.NewLogger(t), runner, 0)

	_, err := compiler.Compile(context.Background(), newTestWorkspace(t), "int main() {}", lookup(t, "c"))
	require.Error(t, err)

	var compileErr *CompileError
	assert.False(t, errors.As(err, &compileErr), "a missing toolchain is a fault, not a compile error")
}

func TestCompilerInterpretedLanguage(t *testing.T) {
	compiler := NewCompiler(zaptest.NewLogger(t), &fakeRunner{}, 0)

	_, err := compiler.Compile(context.Background(), newTestWorkspace(t), "print(1)", lookup(t, "python"))
	assert.Error(t, err)
}

func TestExpandCommand(t *testing.T) {
	argv := ExpandCommand(
		[]string{"mcs", "-out:" + languages.PlaceholderBinary, languages.PlaceholderSource, "literal"},
		map[string]string{
			languages.PlaceholderBinary: "/w/main.exe",
			languages.PlaceholderSource: "/w/main.cs",
		},
	)
	assert.Equal(t, []string{"mcs", "-out:/w/main.exe", "/w/main.cs", "literal"}, argv)
}

func TestCompilerRealToolchain(t *testing.T) {
	if _, err := os.Stat("/usr/bin/g++"); err != nil {
		t.Skip("g++ not available")
	}

	logger := zaptest.NewLogger(t)
	compiler := NewCompiler(logger, NewRunner(logger, Unlimited{}), 0)
	ws := newTestWorkspace(t)

	_, err := compiler.Compile(context.Background(), ws, "int main() {\n  return 0\n}\n", lookup(t, "cpp"))

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.NotZero(t, compileErr.ExitCode)
	assert.NotEmpty(t, compileErr.Stderr)
	assert.NoFileExists(t, filepath.Join(ws.Dir, "main"))
}
