// Package server exposes the cache's admin surface over HTTP with gin.
//
// Routes:
//
//	GET  /healthz                 liveness
//	GET  /readyz                  readiness from the health aggregator
//	GET  /health                  detailed health report
//	GET  /metrics                 Prometheus scrape endpoint
//	POST /api/revalidate          batch of tag and path requests
//	POST /api/revalidate/tag      invalidate one tag
//	POST /api/revalidate/path     invalidate one path
//	GET  /api/revalidate/events   websocket stream of applied revalidations
//	GET  /api/profiles            cache-life profiles in effect
//
// Every /api route requires a session token carrying the revalidation role.
package server
