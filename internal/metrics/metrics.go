// Package metrics registers the Prometheus instruments for the scan
// pipeline. The in-flight gauge mirrors the atomic admission counter; the
// counter itself remains the authoritative admission-control signal.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScanMetrics records pipeline activity.
type ScanMetrics struct {
	InFlight      prometheus.Gauge
	ImagesScanned prometheus.Counter
	ImagesBlocked prometheus.Counter
	ImagesMatched *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	APIErrors     *prometheus.CounterVec
}

// NewScanMetrics registers the scan metrics on the provided registerer.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	m := &ScanMetrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beholder_inflight_scans",
			Help: "Number of image scans currently in flight.",
		}),
		ImagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beholder_images_scanned_total",
			Help: "Images admitted and scanned.",
		}),
		ImagesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beholder_images_blocked_total",
			Help: "Images matched against the block list.",
		}),
		ImagesMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beholder_images_matched_total",
			Help: "Images matched by a classifier stage.",
		}, []string{"stage"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beholder_cache_hits_total",
			Help: "Result cache hits by cache family.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beholder_cache_misses_total",
			Help: "Result cache misses by cache family.",
		}, []string{"cache"}),
		APIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beholder_api_errors_total",
			Help: "External classification API failures.",
		}, []string{"api"}),
	}
	if reg != nil {
		reg.MustRegister(m.InFlight, m.ImagesScanned, m.ImagesBlocked,
			m.ImagesMatched, m.CacheHits, m.CacheMisses, m.APIErrors)
	}
	return m
}
