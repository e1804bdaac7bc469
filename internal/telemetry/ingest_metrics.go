package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ingestCounter      metric.Int64Counter
	ingestDuration     metric.Float64Histogram
	ingestSize         metric.Int64Histogram
	ingestErrorCounter metric.Int64Counter
)

// InitIngestMetrics registers the container ingestion instruments. Safe
// to call when no meter provider is configured; the no-op provider
// absorbs all recordings.
func InitIngestMetrics() error {
	meter := otel.Meter("containerdb.ingest")

	var err error
	ingestCounter, err = meter.Int64Counter(
		"ingest.count",
		metric.WithDescription("Number of container ingestion attempts"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return err
	}
	ingestDuration, err = meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Duration of container ingestion"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}
	ingestSize, err = meter.Int64Histogram(
		"ingest.size",
		metric.WithDescription("Size of uploaded containers"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}
	ingestErrorCounter, err = meter.Int64Counter(
		"ingest.errors",
		metric.WithDescription("Number of rejected container uploads"),
		metric.WithUnit("{upload}"),
	)
	return err
}

// RecordIngest records one ingestion attempt with its outcome.
func RecordIngest(ctx context.Context, format string, size int64, elapsed time.Duration, err error) {
	if ingestCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("format", format),
		attribute.Bool("success", err == nil),
	)
	ingestCounter.Add(ctx, 1, attrs)
	ingestDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	ingestSize.Record(ctx, size, attrs)
	if err != nil {
		ingestErrorCounter.Add(ctx, 1, attrs)
	}
}
