// Package api hosts the HTTP server, middleware, and REST handlers for the
// search pipeline. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/themes lists the configured themes.
//   - POST /v1/search runs one search and returns the RunResult.
//   - POST /v1/search/context runs one search and renders the prompt context.
package api
