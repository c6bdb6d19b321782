// Package main is the entry point for the polyrun execution server.
//
// The server runs untrusted programs in twelve languages, each in a private
// scratch workspace under OS resource ceilings, and exposes that capability
// as a JSON REST API or as a Model Context Protocol server over stdio or
// streamable HTTP, selected by server.transport.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
