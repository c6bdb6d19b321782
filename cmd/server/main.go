package main

import (
	"context"
	"fmt"

	"github.com/moby/sys/reexec"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/httpapi"
	"github.com/isdmx/polyrun/languages"
	"github.com/isdmx/polyrun/logger"
	"github.com/isdmx/polyrun/mcpserver"
	"github.com/isdmx/polyrun/metrics"
	"github.com/isdmx/polyrun/sandbox"
)

func main() {
	// the same binary doubles as the rlimit shim for sandboxed children
	if reexec.Init() {
		return
	}

	app := fx.New(
		// Provide dependencies
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			newRegistry,
			sandbox.NewWorkspaceManagerFromConfig,
			fx.Annotate(
				sandbox.NewExecutorFromConfig,
				fx.As(new(sandbox.SandboxExecutor)),
			),
			mcpserver.New,
			httpapi.New,
		),

		fx.Invoke(
			sweepWorkspaces,
			startTransport,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newRegistry(cfg *config.Config) *languages.Registry {
	return languages.NewRegistry(cfg.LanguageEnvironments())
}

// sweepWorkspaces removes workspaces a crashed predecessor left behind.
func sweepWorkspaces(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, workspaces *sandbox.WorkspaceManager) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if effective, err := cfg.YAML(); err == nil {
				log.Debug("effective configuration", zap.String("yaml", effective))
			}

			removed, err := workspaces.Sweep(cfg.Sandbox.StaleWorkspaceAge)
			if err != nil {
				log.Warn("stale workspace sweep failed", zap.String("root", workspaces.Root()), zap.Error(err))
				return nil
			}
			metrics.WorkspacesSwept.Add(float64(removed))
			return nil
		},
	})
}

// startTransport serves the configured transport for the lifetime of the app.
func startTransport(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	mcp *mcpserver.MCPServer,
	api *httpapi.Server,
) error {
	switch cfg.Server.Transport {
	case config.TransportStdio:
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcp.ServeStdio(); err != nil {
						log.Error("stdio transport failed", zap.Error(err))
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		})

	case config.TransportHTTP:
		lc.Append(fx.Hook{
			OnStart: mcp.StartHTTP,
			OnStop:  mcp.Shutdown,
		})

	case config.TransportREST:
		lc.Append(fx.Hook{
			OnStart: api.Start,
			OnStop:  api.Stop,
		})

	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}

	return nil
}
