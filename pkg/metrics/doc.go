// Package metrics counts crawl outcomes with Prometheus collectors and can
// serve them on /metrics while a crawl runs (crawl --metrics-addr).
package metrics
