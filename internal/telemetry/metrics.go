package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/smartops/authd"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Account metrics
	SignupsTotal       metric.Int64Counter
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter

	// Session metrics
	SessionsCreatedTotal metric.Int64Counter
	SessionsRevokedTotal metric.Int64Counter
	SessionsPurgedTotal  metric.Int64Counter

	// Guard metrics
	GuardRejectionsTotal metric.Int64Counter
	HijackDetectedTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SignupsTotal, _ = meter.Int64Counter(
		"authd.signups.total",
		metric.WithDescription("Total number of successful signups"),
		metric.WithUnit("{signup}"),
	)

	m.LoginsTotal, _ = meter.Int64Counter(
		"authd.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"authd.logins.failures.total",
		metric.WithDescription("Total number of rejected login attempts"),
		metric.WithUnit("{login}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"authd.sessions.created.total",
		metric.WithDescription("Total number of sessions created"),
		metric.WithUnit("{session}"),
	)

	m.SessionsRevokedTotal, _ = meter.Int64Counter(
		"authd.sessions.revoked.total",
		metric.WithDescription("Total number of sessions removed by logout or logout-all"),
		metric.WithUnit("{session}"),
	)

	m.SessionsPurgedTotal, _ = meter.Int64Counter(
		"authd.sessions.purged.total",
		metric.WithDescription("Total number of expired sessions removed by the purge job"),
		metric.WithUnit("{session}"),
	)

	m.GuardRejectionsTotal, _ = meter.Int64Counter(
		"authd.guard.rejections.total",
		metric.WithDescription("Total number of requests rejected by the session guard"),
		metric.WithUnit("{request}"),
	)

	m.HijackDetectedTotal, _ = meter.Int64Counter(
		"authd.guard.hijack.total",
		metric.WithDescription("Total number of fingerprint mismatches treated as hijacking"),
		metric.WithUnit("{request}"),
	)

	return m
}
