package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(historyEventsTotal, storageRecoveriesTotal, historySize) }

var historyEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_history_events_total",
		Help: "History store mutations, labeled by kind.",
	},
	[]string{"kind"}, // 'add', 'upsert', 'remove', 'clear', 'sync'
)

var storageRecoveriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "analysis_storage_quota_recoveries_total",
		Help: "Times the history store shed entries to recover from a storage quota failure.",
	},
)

var historySize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "analysis_history_size",
		Help: "Current number of entries held by the history store.",
	},
)

func IncHistoryEvent(kind string) {
	historyEventsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncStorageRecovery() { storageRecoveriesTotal.Inc() }

func SetHistorySize(n int) { historySize.Set(float64(n)) }
