package overlay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/geopol/geopol-go/internal/overlay"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// fetchMetrics counts fetch outcomes per overlay.
// Uses the global OTel meter (no-op if not configured).
type fetchMetrics struct {
	success metric.Int64Counter
	failure metric.Int64Counter
	stale   metric.Int64Counter
	attrs   metric.MeasurementOption
}

func newFetchMetrics(overlayID string) (*fetchMetrics, error) {
	m := meter()
	fm := &fetchMetrics{
		attrs: metric.WithAttributes(attribute.String("overlay", overlayID)),
	}

	var err error
	fm.success, err = m.Int64Counter(
		"overlay.fetch.success",
		metric.WithDescription("Overlay fetches applied to the map"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating success counter: %w", err)
	}

	fm.failure, err = m.Int64Counter(
		"overlay.fetch.failure",
		metric.WithDescription("Overlay fetches that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	fm.stale, err = m.Int64Counter(
		"overlay.fetch.stale_dropped",
		metric.WithDescription("Overlay responses dropped because a newer request was issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stale counter: %w", err)
	}

	return fm, nil
}

func (m *fetchMetrics) succeeded() {
	m.success.Add(context.Background(), 1, m.attrs)
}

func (m *fetchMetrics) failed() {
	m.failure.Add(context.Background(), 1, m.attrs)
}

func (m *fetchMetrics) dropped() {
	m.stale.Add(context.Background(), 1, m.attrs)
}
