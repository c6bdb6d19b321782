package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/moby/sys/reexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/httpapi"
	"github.com/isdmx/polyrun/languages"
	"github.com/isdmx/polyrun/logger"
	"github.com/isdmx/polyrun/mcpserver"
	"github.com/isdmx/polyrun/sandbox"
)

func TestMain(m *testing.M) {
	if reexec.Init() {
		return
	}
	os.Exit(m.Run())
}

type stack struct {
	cfg        *config.Config
	registry   *languages.Registry
	workspaces *sandbox.WorkspaceManager
	executor   *sandbox.Executor
}

func newStack(t *testing.T) stack {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("process sandboxing requires linux")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	scratch := filepath.Join(t.TempDir(), "scratch")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  transport: rest
  http_port: 8080
sandbox:
  scratch_root: `+scratch+`
  max_timeout_sec: 10
  max_output_bytes: 4096
languages:
  bash:
    environment:
      - GREETING=hello from config
logging:
  mode: development
  level: debug
`), 0o600))

	cfg, err := config.NewFromFile(path)
	require.NoError(t, err)

	_, err = logger.NewFromConfig(cfg)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	registry := languages.NewRegistry(cfg.LanguageEnvironments())
	workspaces := sandbox.NewWorkspaceManagerFromConfig(log, cfg)

	return stack{
		cfg:        cfg,
		registry:   registry,
		workspaces: workspaces,
		executor:   sandbox.NewExecutorFromConfig(log, cfg, registry, workspaces),
	}
}

func assertScratchEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestIntegrationConfigExecutor runs programs through an executor built
// entirely from a configuration file
func TestIntegrationConfigExecutor(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	t.Run("LanguageEnvironmentFromConfig", func(t *testing.T) {
		result := s.executor.Execute(ctx, sandbox.ExecutionRequest{Language: "bash", Code: `echo "$GREETING"`})
		require.True(t, result.Success, result.Stderr)
		assert.Equal(t, "hello from config\n", result.Stdout)
	})

	t.Run("OutputCapFromConfig", func(t *testing.T) {
		result := s.executor.Execute(ctx, sandbox.ExecutionRequest{Language: "bash", Code: `yes | head -c 100000`})
		assert.True(t, result.Success, result.Stderr)
		assert.Len(t, result.Stdout, 4096+len(sandbox.TruncationMarker))
	})

	t.Run("TimeoutBoundFromConfig", func(t *testing.T) {
		result := s.executor.Execute(ctx, sandbox.ExecutionRequest{Language: "bash", Code: "echo hi", TimeoutSec: 11})
		assert.Equal(t, sandbox.ErrorInvalidRequest, result.Error)
	})

	t.Run("Timeout", func(t *testing.T) {
		start := time.Now()
		result := s.executor.Execute(ctx, sandbox.ExecutionRequest{Language: "bash", Code: "echo before; sleep 30", TimeoutSec: 1})
		assert.True(t, result.TimedOut)
		assert.Equal(t, "before\n", result.Stdout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	assertScratchEmpty(t, s.cfg.Sandbox.ScratchRoot)
}

// TestIntegrationREST drives the real executor through the HTTP API
func TestIntegrationREST(t *testing.T) {
	s := newStack(t)
	api := httpapi.New(s.cfg, zaptest.NewLogger(t), s.executor, s.registry)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	body, err := json.Marshal(sandbox.ExecutionRequest{Language: "bash", Code: "read x; echo \"got $x\"", Stdin: "42\n"})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/v1/execute", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result sandbox.ExecutionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success, result.Stderr)
	assert.Equal(t, "got 42\n", result.Stdout)
	assert.NotEmpty(t, result.ExecutionID)

	resp, err = http.Post(server.URL+"/api/v1/execute", "application/json",
		bytes.NewReader([]byte(`{"language":"cobol","code":"DISPLAY 'HI'."}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assertScratchEmpty(t, s.cfg.Sandbox.ScratchRoot)
}

// TestIntegrationMCP checks the MCP server comes up on the real stack
func TestIntegrationMCP(t *testing.T) {
	s := newStack(t)

	server, err := mcpserver.New(s.cfg, zaptest.NewLogger(t), s.executor, s.registry)
	require.NoError(t, err)

	response := server.GetMCPServer().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_code","arguments":{"language":"bash","code":"echo mcp"}}}`))
	encoded, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `mcp\\n`)
}
