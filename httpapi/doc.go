// Package httpapi exposes the sandbox over a JSON REST API.
//
// Routes:
//
//	POST /api/v1/execute    run one ExecutionRequest, respond with its ExecutionResult
//	GET  /api/v1/languages  list the supported languages
//	GET  /healthz           liveness probe
//	GET  /metrics           Prometheus exposition
//
// Requests rejected during validation answer 400 with the full result body;
// every other execution answers 200, whatever the program did.
//
// Usage:
//
//	srv := httpapi.New(cfg, logger, executor, registry)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop(ctx)
package httpapi
