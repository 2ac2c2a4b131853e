// Package api exposes the read-only HTTP status surface of a crawl run:
// liveness, Prometheus metrics and a JSON snapshot of progress.
package api
