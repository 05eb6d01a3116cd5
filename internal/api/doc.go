// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs, /v1/scan, /v1/discover and /v1/verify to trigger the pipeline by hand.
//   - GET and POST /v1/sources plus /v1/sources/{host}/pause|resume|enable|disable to
//     manage monitored communities.
package api
