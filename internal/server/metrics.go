package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxglance/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is where Prometheus scrapes unless --metrics-addr says otherwise.
	DefaultMetricsAddr = ":9090"

	metricsReadHeaderTimeout = 5 * time.Second
	metricsWriteTimeout      = 15 * time.Second
	metricsIdleTimeout       = time.Minute

	// DefaultShutdownTimeout bounds the drain of both listeners on SIGTERM.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig configures the scrape listener.
type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr.
	Addr string

	// InstrumentationProvider must be enabled and export to Prometheus.
	InstrumentationProvider *instrumentation.Provider

	Logger *slog.Logger
}

// MetricsServer exposes /metrics on its own port so scrapes never go
// through the public API's CORS and request metrics.
type MetricsServer struct {
	addr   string
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewMetricsServer checks that the provider actually feeds the default
// Prometheus registry before anything listens.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	provider := config.InstrumentationProvider
	switch {
	case provider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	case !provider.ServesPrometheus():
		return nil, errors.New("instrumentation provider does not export prometheus metrics")
	}

	s := &MetricsServer{addr: config.Addr, logger: config.Logger}
	if s.addr == "" {
		s.addr = DefaultMetricsAddr
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Handler serves /metrics from the default registry and a bare /healthz
// for the scrape target's own liveness check.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens on the configured address and serves until Shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts scrapes on ln until Shutdown. It blocks.
func (s *MetricsServer) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown drains open scrapes. Calling it before Start is a no-op.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return srv.Shutdown(ctx)
}

// Addr is the bound address once serving, the configured one before.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
