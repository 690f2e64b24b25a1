package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teemow/inboxglance/internal/logging"
)

// unmatchedRoute labels requests no route matched, keeping raw paths out of
// metric labels.
const unmatchedRoute = "unmatched"

// observe records request metrics and logs one line per request, labelled
// by chi's route pattern rather than the raw path.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)

		s.metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			logging.Route(route),
			slog.Int("code", status),
			slog.Duration(logging.KeyDuration, duration),
			logging.RequestID(middleware.GetReqID(r.Context())))
	})
}
