package view

import "github.com/prometheus/client_golang/prometheus"

var PageEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ordview",
	Subsystem: "view",
	Name:      "pages",
}, []string{"view", "event"})

var PageCache = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ordview",
	Subsystem: "view",
	Name:      "page_cache",
}, []string{"view", "result"})

var ChangesetOps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ordview",
	Subsystem: "view",
	Name:      "changeset_ops",
}, []string{"view", "op"})

var RestructureDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ordview",
	Subsystem: "view",
	Name:      "restructure_duration",
	Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 20},
}, []string{"view"})

// Collectors lists the view metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{PageEvents, PageCache, ChangesetOps, RestructureDuration}
}

const (
	eventSplit        = "split"
	eventMerge        = "merge"
	eventRedistribute = "redistribute"
	eventDrop         = "drop"
	eventRestructure  = "restructure"
)
