// Package logging logs one structured line per HTTP request.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/contraship/internal/middleware/realip"
)

// Middleware logs each request with its request ID, route, status, size,
// duration and client IP. Server errors log at Error, client errors at Warn.
// Requests to quietPaths that succeed are logged at Debug so probes and
// scrapes do not flood the log.
func Middleware(logger *slog.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	quiet := make(map[string]bool, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				attrs := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"client_ip", realip.GetClientIP(r),
				}
				if route := routePattern(r); route != "" {
					attrs = append(attrs, "route", route)
				}

				switch {
				case status >= 500:
					logger.Error("request", attrs...)
				case status >= 400:
					logger.Warn("request", attrs...)
				case quiet[r.URL.Path]:
					logger.Debug("request", attrs...)
				default:
					logger.Info("request", attrs...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
