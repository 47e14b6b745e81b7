package ordview

import "github.com/prometheus/client_golang/prometheus"

var CommitCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ordview",
	Subsystem: "store",
	Name:      "commits",
}, []string{"kind", "result"})

var CommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ordview",
	Subsystem: "store",
	Name:      "commit_duration",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
}, []string{"kind"})

// Collectors lists the store metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{CommitCount, CommitDuration}
}
