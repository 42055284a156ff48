package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/orgd"
)

// Login outcomes recorded on LoginAttemptsTotal.
const (
	LoginSucceeded          = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginFailed             = "error"
)

// OutcomeKey is the attribute carrying a login outcome.
var OutcomeKey = attribute.Key("outcome")

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Organization lifecycle metrics
	OrganizationsCreatedTotal metric.Int64Counter
	OrganizationsRenamedTotal metric.Int64Counter
	OrganizationsDeletedTotal metric.Int64Counter

	// Authentication metrics
	LoginAttemptsTotal metric.Int64Counter

	// Collection migration metrics
	DocumentsMigratedTotal metric.Int64Counter
	MigrationDuration      metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance bound to the global meter
// provider, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

// NewMetrics creates all metric instruments on meter.
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	m.OrganizationsCreatedTotal, _ = meter.Int64Counter(
		"orgd.organizations.created.total",
		metric.WithDescription("Total number of organizations created"),
		metric.WithUnit("{organization}"),
	)

	m.OrganizationsRenamedTotal, _ = meter.Int64Counter(
		"orgd.organizations.renamed.total",
		metric.WithDescription("Total number of organizations renamed"),
		metric.WithUnit("{organization}"),
	)

	m.OrganizationsDeletedTotal, _ = meter.Int64Counter(
		"orgd.organizations.deleted.total",
		metric.WithDescription("Total number of organizations deleted"),
		metric.WithUnit("{organization}"),
	)

	m.LoginAttemptsTotal, _ = meter.Int64Counter(
		"orgd.logins.total",
		metric.WithDescription("Total number of admin login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)

	m.DocumentsMigratedTotal, _ = meter.Int64Counter(
		"orgd.collections.documents_migrated.total",
		metric.WithDescription("Total number of documents copied by collection renames"),
		metric.WithUnit("{document}"),
	)

	m.MigrationDuration, _ = meter.Float64Histogram(
		"orgd.collections.migration.duration",
		metric.WithDescription("Duration of collection migrations"),
		metric.WithUnit("ms"),
	)

	return m
}
