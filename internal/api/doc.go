// Package api hosts the HTTP trigger surface for the ingestion service.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sync/... and /v1/scrape/... to run one ingestion operation and
//     return its summary.
//   - GET /v1/status for the official API quota window.
package api
