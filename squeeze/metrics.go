package squeeze

import "github.com/prometheus/client_golang/prometheus"

var (
	changesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squeeze",
			Name:      "changes_decoded_total",
			Help:      "Concurrent changes queued for replay, by change kind.",
		}, []string{"kind"})

	changesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squeeze",
			Name:      "changes_applied_total",
			Help:      "Concurrent changes applied to rebuilt tables, by operation.",
		}, []string{"op"})

	spilledBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "squeeze",
			Name:      "spilled_batches_total",
			Help:      "Batches that did not fit in memory and were written to disk.",
		})

	pendingBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "squeeze",
			Name:      "pending_bytes",
			Help:      "Encoded size of decoded changes waiting to be applied.",
		})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry prometheus.Registerer) {
	registry.MustRegister(changesDecoded)
	registry.MustRegister(changesApplied)
	registry.MustRegister(spilledBatches)
	registry.MustRegister(pendingBytes)
}
