package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/userdesk"
)

// Metrics holds the session instruments.
type Metrics struct {
	LoginsTotal    metric.Int64Counter
	LogoutsTotal   metric.Int64Counter
	RestoredTotal  metric.Int64Counter
	ExpiredTotal   metric.Int64Counter
	MalformedTotal metric.Int64Counter

	// Store errors, by operation
	StoreErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance backed by the global
// meter provider, initializing it if necessary.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider())
	})
	return metrics
}

// NewMetrics creates the instruments from provider.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	meter := provider.Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"userdesk.session.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"userdesk.session.logouts.total",
		metric.WithDescription("Total number of logouts"),
		metric.WithUnit("{logout}"),
	)

	m.RestoredTotal, _ = meter.Int64Counter(
		"userdesk.session.restored.total",
		metric.WithDescription("Total number of sessions restored from the store at startup"),
		metric.WithUnit("{session}"),
	)

	m.ExpiredTotal, _ = meter.Int64Counter(
		"userdesk.session.expired.total",
		metric.WithDescription("Total number of expired tokens discarded"),
		metric.WithUnit("{token}"),
	)

	m.MalformedTotal, _ = meter.Int64Counter(
		"userdesk.session.malformed.total",
		metric.WithDescription("Total number of tokens discarded because they could not be decoded"),
		metric.WithUnit("{token}"),
	)

	m.StoreErrorsTotal, _ = meter.Int64Counter(
		"userdesk.session.store.errors.total",
		metric.WithDescription("Total number of session store failures"),
		metric.WithUnit("{error}"),
	)

	return m
}
