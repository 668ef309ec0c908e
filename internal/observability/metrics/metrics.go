// Package metrics exposes Prometheus collectors for the pieces of the
// pipeline worth watching over time: how often artifacts are downloaded
// (and from where), how long scans take, and how often policy blocks a
// server. Registration happens on prometheus.DefaultRegisterer at import
// time, the same way promhttp.Handler expects; callers that don't serve
// /metrics never touch this package and pay nothing for it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts every artifact download attempt, labeled by
	// package kind and outcome ("ok", "error").
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpshield_downloads_total",
		Help: "Total artifact download attempts, by package kind and outcome.",
	}, []string{"kind", "outcome"})

	// ScanDurationSeconds observes the wall-clock time of one scan
	// invocation (a single "mcpshield scan" run, not a per-artifact scan).
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcpshield_scan_duration_seconds",
		Help:    "Duration of a full scan run across all pinned servers.",
		Buckets: prometheus.DefBuckets,
	})

	// PolicyBlocksTotal counts every time a policy decision blocked an
	// operation, labeled by which operation was blocked ("add", "scan").
	PolicyBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpshield_policy_blocks_total",
		Help: "Total operations blocked by policy, by operation.",
	}, []string{"operation"})
)

// RecordDownload increments DownloadsTotal for one download attempt.
func RecordDownload(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DownloadsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveScanDuration records how long a scan run took from start.
func ObserveScanDuration(start time.Time) {
	ScanDurationSeconds.Observe(time.Since(start).Seconds())
}

// RecordPolicyBlock increments PolicyBlocksTotal for one blocked operation.
func RecordPolicyBlock(operation string) {
	PolicyBlocksTotal.WithLabelValues(operation).Inc()
}
