// Package metrics exposes Prometheus collectors for code executions.
//
// Collectors register with the default registry on import and are served by
// the REST transport at /metrics. Language labels are limited to registry
// ids plus "unsupported".
package metrics
