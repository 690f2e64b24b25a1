package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrDomain    = "user_domain"
	attrPart      = "part"
)

// Metrics records the service's counters and histograms.
// The zero value is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthAuthTotal metric.Int64Counter

	activeSessions    metric.Int64UpDownCounter
	connectedAccounts metric.Int64UpDownCounter

	bodyDecodeFailures metric.Int64Counter

	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
// detailedLabels adds the user's mail domain to Google API metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	if m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	if m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of completed OAuth callbacks"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	if m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of logged-in sessions created or destroyed by this process"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active_sessions counter: %w", err)
	}

	if m.connectedAccounts, err = meter.Int64UpDownCounter(
		"connected_accounts",
		metric.WithDescription("Number of Google accounts in the account store"),
		metric.WithUnit("{account}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create connected_accounts counter: %w", err)
	}

	if m.bodyDecodeFailures, err = meter.Int64Counter(
		"gmail_body_decode_failures_total",
		metric.WithDescription("Message bodies left empty because their payload did not decode"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create gmail_body_decode_failures_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request. route is the matched router
// pattern, never the raw path, so account emails in URLs stay out of labels.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrRoute, route),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records one call to a Google API.
// email is only used when detailed labels are enabled, and then only its domain.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status, email string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	kv := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && email != "" {
		kv = append(kv, attribute.String(attrDomain, domainLabel(email)))
	}

	attrs := metric.WithAttributes(kv...)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records a finished OAuth callback with its result.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordBodyDecodeFailure counts a message body that was dropped.
// part is "text/plain", "text/html" or "body".
func (m *Metrics) RecordBodyDecodeFailure(ctx context.Context, part string) {
	if m == nil || m.bodyDecodeFailures == nil {
		return
	}
	m.bodyDecodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPart, part)))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}

// RemoveActiveSessions lowers the active sessions counter by n sessions
// that expired without a logout.
func (m *Metrics) RemoveActiveSessions(ctx context.Context, n int) {
	if m == nil || m.activeSessions == nil || n <= 0 {
		return
	}
	m.activeSessions.Add(ctx, -int64(n))
}

// AddConnectedAccounts moves the connected accounts gauge by delta.
func (m *Metrics) AddConnectedAccounts(ctx context.Context, delta int64) {
	if m == nil || m.connectedAccounts == nil || delta == 0 {
		return
	}
	m.connectedAccounts.Add(ctx, delta)
}
