// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the sandbox to MCP clients through two tools:
// execute_code, which runs a program and returns the execution result as
// JSON text, and list_languages. It uses the mark3labs/mcp-go library to
// handle the protocol details.
//
// The server supports both stdio and streamable HTTP transports as configured
// by the application configuration. Over HTTP the endpoint is /mcp.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sandboxExecutor, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.StartHTTP(ctx), then server.Shutdown(ctx)
package mcpserver
