package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/languages"
	"github.com/isdmx/polyrun/sandbox"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// Tool names
const (
	ExecuteCodeTool   = "execute_code"
	ListLanguagesTool = "list_languages"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	registry    *languages.Registry
	mcpServer   *server.MCPServer
	// httpServer is built in New and only started by StartHTTP, so
	// Shutdown never races its construction.
	httpServer *http.Server
	listener   net.Listener
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor, registry *languages.Registry) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
		registry:    registry,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.scratch_root", cfg.Sandbox.ScratchRoot),
		zap.Int("sandbox.max_timeout_sec", cfg.Sandbox.MaxTimeoutSec),
		zap.Int("sandbox.compile_timeout_sec", cfg.Sandbox.CompileTimeoutSec),
		zap.Int("sandbox.max_output_bytes", cfg.Sandbox.MaxOutputBytes),
		zap.Int("sandbox.max_processes", cfg.Sandbox.MaxProcesses),
		zap.Bool("sandbox.enforce_limits", cfg.Sandbox.EnforceLimits),
		zap.Strings("languages", registry.IDs()),
	)

	s.mcpServer = server.NewMCPServer("polyrun", "1.0.0", server.WithToolCapabilities(false))

	s.registerExecuteCodeTool()
	s.registerListLanguagesTool()

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Handle(EndpointPath, server.NewStreamableHTTPServer(s.mcpServer))
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        ExecuteCodeTool,
		Description: "Compile if needed and run untrusted source code under resource limits",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Complete program source",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language identifier",
					"enum":        s.registry.IDs(),
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Run timeout in seconds (1-%d); the language default when omitted", s.config.Sandbox.MaxTimeoutSec),
					"minimum":     1,
					"maximum":     s.config.Sandbox.MaxTimeoutSec,
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Text fed to the program's standard input",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// registerListLanguagesTool registers the list_languages tool
func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.Tool{
		Name:        ListLanguagesTool,
		Description: "List the supported languages with their default timeouts and memory ceilings",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("code parameter is required: %v", err)), nil
	}

	language, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("language parameter is required: %v", err)), nil
	}

	req := sandbox.ExecutionRequest{
		Language:   language,
		Code:       code,
		TimeoutSec: request.GetInt("timeout", 0),
		Stdin:      request.GetString("stdin", ""),
	}

	result := s.sandboxExec.Execute(ctx, req)

	s.logger.Debug("tool call completed",
		zap.String("tool", ExecuteCodeTool),
		zap.String("execution_id", result.ExecutionID),
		zap.Bool("success", result.Success))

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(resultJSON),
			},
		},
		IsError: result.Stage == sandbox.StageValidate,
	}, nil
}

// handleListLanguages handles the list_languages tool
func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := json.Marshal(s.registry.Infos())
	if err != nil {
		return nil, fmt.Errorf("failed to encode languages: %w", err)
	}
	return mcp.NewToolResultText(string(infos)), nil
}

// ServeStdio serves on stdin/stdout until the input closes or a termination
// signal arrives.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// StartHTTP binds the configured port and serves streamable HTTP in the
// background until Shutdown. Bind errors are returned; later serve errors
// are logged.
func (s *MCPServer) StartHTTP(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	s.logger.Info("starting MCP server on HTTP",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", EndpointPath))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("MCP HTTP transport failed", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once StartHTTP succeeded, nil before.
func (s *MCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the HTTP transport and drains open requests until ctx
// expires. Before StartHTTP it only keeps the server from serving later;
// it is a no-op for stdio.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
