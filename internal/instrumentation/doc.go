// Package instrumentation provides OpenTelemetry metrics, tracing and the
// audit stream for inboxglance.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, route pattern and status
//   - http_request_duration_seconds: request latency
//
// Google APIs:
//   - google_api_operations_total: calls by service (gmail, oauth2), operation and status
//   - google_api_operation_duration_seconds: call latency
//   - gmail_body_decode_failures_total: bodies dropped because they did not decode
//
// Identity:
//   - oauth_auth_total: OAuth callbacks by result
//   - active_sessions: sessions created minus sessions destroyed (session mode)
//   - connected_accounts: accounts in the store (accounts mode)
//
// Metrics are exported through Prometheus (default, served by the metrics
// server), OTLP over HTTP, or stdout.
//
// # Tracing
//
// Client spans named google.<service>.<operation> wrap every Gmail list/get
// and userinfo call. Tracing is off unless a tracing exporter is configured.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail,
//		instrumentation.OperationList, instrumentation.StatusSuccess, email, time.Since(start))
package instrumentation
