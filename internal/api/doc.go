// Package api hosts the operator HTTP surface of the ingestion service:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the most recent run report.
//   - GET /v1/runs/status to see whether a run is active.
//   - POST /v1/runs to trigger a run when none is active.
//
// When an API key is configured the /v1 routes require it via the X-API-Key
// header or the api_key query parameter.
package api
