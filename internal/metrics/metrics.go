// Package metrics exposes Prometheus collectors for the room/session layer,
// grounded on zfogg-sidechain/backend/internal/metrics/metrics.go's
// promauto + sync.Once singleton pattern, scoped down to this domain's
// counters and gauges.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ActiveRooms    prometheus.Gauge
	ActiveSessions prometheus.Gauge

	OperationsProcessedTotal prometheus.Counter
	OperationErrorsTotal     *prometheus.CounterVec

	TransformChainLength prometheus.Histogram

	BusPublishFailuresTotal   prometheus.Counter
	BusSubscribeFailuresTotal prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			ActiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "realtime_docs_active_rooms",
				Help: "Number of documents with at least one locally connected session.",
			}),
			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "realtime_docs_active_sessions",
				Help: "Number of locally connected sessions across all rooms.",
			}),
			OperationsProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_docs_operations_processed_total",
				Help: "Total number of operations successfully applied to a document.",
			}),
			OperationErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "realtime_docs_operation_errors_total",
				Help: "Total number of operations rejected, labeled by error kind.",
			}, []string{"kind"}),
			TransformChainLength: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "realtime_docs_transform_chain_length",
				Help:    "Number of buffered operations an incoming operation was transformed against.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 200},
			}),
			BusPublishFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_docs_bus_publish_failures_total",
				Help: "Total number of failed bus publish attempts.",
			}),
			BusSubscribeFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_docs_bus_subscribe_failures_total",
				Help: "Total number of failed bus subscribe attempts.",
			}),
		}
	})
	return instance
}

func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
