// Package monitor exposes the storage core's performance counters: write
// outcomes, search latency, and semantic-subsystem failures, published as
// OpenTelemetry instruments that the Prometheus /metrics endpoint exports.
package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/memoryd/memoryd/internal/monitor"

// Metrics holds the storage core's instruments.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	storeOutcomes    metric.Int64Counter
	searchDuration   metric.Float64Histogram
	searchResults    metric.Int64Histogram
	semanticFailures metric.Int64Counter
	feedbackEvents   metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.storeOutcomes, err = m.meter.Int64Counter(
		"memoryd.store.outcomes_total",
		metric.WithDescription("Write-path outcomes labeled stored/merged/skipped_duplicate/suggested/no_action"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		m.logger.Warn("failed to create store outcomes counter", zap.Error(err))
	}

	m.searchDuration, err = m.meter.Float64Histogram(
		"memoryd.search.duration_seconds",
		metric.WithDescription("Search latency labeled by mode"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		m.logger.Warn("failed to create search duration histogram", zap.Error(err))
	}

	m.searchResults, err = m.meter.Int64Histogram(
		"memoryd.search.results",
		metric.WithDescription("Result count per search"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100),
	)
	if err != nil {
		m.logger.Warn("failed to create search results histogram", zap.Error(err))
	}

	m.semanticFailures, err = m.meter.Int64Counter(
		"memoryd.semantic.failures_total",
		metric.WithDescription("Embedder/vector-index failures that degraded a request"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		m.logger.Warn("failed to create semantic failures counter", zap.Error(err))
	}

	m.feedbackEvents, err = m.meter.Int64Counter(
		"memoryd.learning.feedback_total",
		metric.WithDescription("Learning feedback events labeled by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		m.logger.Warn("failed to create feedback counter", zap.Error(err))
	}
}

// RecordStoreOutcome counts one write-path outcome.
func (m *Metrics) RecordStoreOutcome(ctx context.Context, outcome string) {
	if m == nil || m.storeOutcomes == nil {
		return
	}
	m.storeOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSearch records one search's latency and result count.
func (m *Metrics) RecordSearch(ctx context.Context, mode string, duration time.Duration, results int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if m.searchDuration != nil {
		m.searchDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.searchResults != nil {
		m.searchResults.Record(ctx, int64(results), attrs)
	}
}

// RecordSemanticFailure counts a degraded semantic call.
func (m *Metrics) RecordSemanticFailure(ctx context.Context) {
	if m == nil || m.semanticFailures == nil {
		return
	}
	m.semanticFailures.Add(ctx, 1)
}

// RecordFeedback counts one learning feedback event.
func (m *Metrics) RecordFeedback(ctx context.Context, feedbackType string) {
	if m == nil || m.feedbackEvents == nil {
		return
	}
	m.feedbackEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", feedbackType)))
}
