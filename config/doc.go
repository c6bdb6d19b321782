// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and POLYRUN_* environment variables. It
// covers server transport settings, sandbox bounds (timeouts, output caps,
// process ceilings, scratch directory), logging, and per-language
// environment overrides.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
