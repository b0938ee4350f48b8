package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectionsTotal tracks the number of collections known to the store.
	CollectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memoryd",
		Subsystem: "vectorstore",
		Name:      "collections_total",
		Help:      "Number of collections currently tracked by the vector store.",
	})

	// OperationDuration tracks how long vector store operations take.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memoryd",
		Subsystem: "vectorstore",
		Name:      "operation_duration_seconds",
		Help:      "Duration of vector store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// OperationTotal counts vector store operations by outcome.
	OperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "vectorstore",
		Name:      "operations_total",
		Help:      "Total vector store operations by outcome.",
	}, []string{"operation", "outcome"})

	// CorruptCollectionsDetected counts collections quarantined at startup
	// by NewResilientChromemDB.
	CorruptCollectionsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "vectorstore",
		Name:      "corrupt_collections_detected_total",
		Help:      "Collections found with missing metadata and quarantined at startup.",
	})
)
