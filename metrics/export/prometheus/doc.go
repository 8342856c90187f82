// Package prometheus exposes secureauth engine metrics through
// github.com/prometheus/client_golang.
//
// [Collector] reads Engine.MetricsSnapshot on every scrape; nothing is
// copied into client_golang state between scrapes. Register it on your own
// registry or use [Handler] for a standalone /metrics endpoint.
package prometheus
