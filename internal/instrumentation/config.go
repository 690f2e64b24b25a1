package instrumentation

import (
	"fmt"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
// The CLI fills it from flags and environment; DefaultConfig supplies the
// values used when nothing is set.
type Config struct {
	// ServiceName is reported as service.name (default: inboxglance)
	ServiceName string

	// ServiceVersion is reported as service.version
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname when empty
	ServiceInstanceID string

	// Enabled turns metrics and tracing on or off as a whole
	Enabled bool

	// MetricsExporter is one of prometheus, otlp, stdout
	MetricsExporter string

	// TracingExporter is one of otlp, stdout, none
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without scheme
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio, 0.0 to 1.0
	TraceSamplingRate float64

	// DetailedLabels adds the user's mail domain to Google API metrics.
	DetailedLabels bool

	// Audit configures the account and session audit stream.
	Audit AuditConfig
}

// AuditConfig holds configuration for audit logging.
type AuditConfig struct {
	// Enabled determines if audit events are emitted (default: true)
	Enabled bool

	// IncludePII logs full email addresses instead of anonymized hashes.
	// Route the audit stream to restricted storage before turning this on.
	IncludePII bool
}

// DefaultConfig returns the default instrumentation configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "inboxglance",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}

	return nil
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Google services called by the backend
	ServiceGmail    = "gmail"
	ServiceUserinfo = "oauth2"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
