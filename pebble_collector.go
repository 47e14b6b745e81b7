package ordview

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// PebbleCollector exports the LSM health numbers of a store's database.
type PebbleCollector struct {
	store   *Store
	metrics []pebbleMetric
}

func NewPebbleCollector(store *Store) *PebbleCollector {
	metric := func(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleMetric {
		return pebbleMetric{
			desc:  prometheus.NewDesc(name, help, nil, nil),
			kind:  kind,
			value: value,
		}
	}
	return &PebbleCollector{
		store: store,
		metrics: []pebbleMetric{
			metric("pebble_compaction_count_total", "Total number of compactions performed",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			metric("pebble_compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted to reach a stable state",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			metric("pebble_memtable_size_bytes", "Current size of the memtable in bytes",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			metric("pebble_memtable_count_total", "Current count of memtables",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			metric("pebble_wal_files_total", "Number of live WAL files",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			metric("pebble_wal_size_bytes", "Size of the live WAL files in bytes",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			metric("pebble_wal_bytes_in_total", "Logical bytes written to the WAL",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }),
		},
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

// Collect reports nothing for a closed store.
func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	db := pc.store.Database()
	if db == nil {
		return
	}
	metrics := db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(metrics))
	}
}
