package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/middleware/realip"
)

func testHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestMiddleware_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	handler := Middleware(newLogger(&buf))(testHandler(http.StatusOK, "hello"))

	req := httptest.NewRequest("GET", "/api/v1/deployments", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())

	entry := decode(t, &buf)
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/deployments", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(5), entry["bytes"])
	assert.NotEmpty(t, entry["duration"])
	assert.Equal(t, "192.168.1.100", entry["client_ip"])
	assert.NotContains(t, entry, "route")
}

func TestMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		quiet  []string
		level  string
	}{
		{"ok", "/api/v1/check", http.StatusOK, nil, "INFO"},
		{"not found", "/api/v1/deployments/x", http.StatusNotFound, nil, "WARN"},
		{"server error", "/api/v1/check", http.StatusInternalServerError, nil, "ERROR"},
		{"quiet probe", "/healthz", http.StatusOK, []string{"/healthz"}, "DEBUG"},
		{"failing probe is not quiet", "/readyz", http.StatusServiceUnavailable, []string{"/readyz"}, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Middleware(newLogger(&buf), tt.quiet...)(testHandler(tt.status, ""))

			req := httptest.NewRequest("GET", tt.path, nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entry := decode(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestMiddleware_RoutePattern(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(Middleware(newLogger(&buf)))
	r.Get("/api/v1/deployments/{chainId}/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/deployments/1/0xabc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decode(t, &buf)
	assert.Equal(t, "/api/v1/deployments/{chainId}/{address}", entry["route"])
	assert.Equal(t, "/api/v1/deployments/1/0xabc", entry["path"])
}

func TestMiddleware_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(Middleware(newLogger(&buf))(testHandler(http.StatusOK, "")))

	req := httptest.NewRequest("GET", "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decode(t, &buf)
	assert.NotEmpty(t, entry["request_id"])
}

func TestMiddleware_RequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	handler := Middleware(newLogger(&buf))(testHandler(http.StatusOK, ""))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "test-request-id-123"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "test-request-id-123", decode(t, &buf)["request_id"])
}

func TestMiddleware_UsesRealIPFromContext(t *testing.T) {
	var buf bytes.Buffer
	handler := realip.Middleware(realip.Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8"},
	})(Middleware(newLogger(&buf))(testHandler(http.StatusOK, "")))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.50", decode(t, &buf)["client_ip"])
}

func TestMiddleware_DefaultStatus200(t *testing.T) {
	t.Run("body without header", func(t *testing.T) {
		var buf bytes.Buffer
		handler := Middleware(newLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("no explicit status"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		entry := decode(t, &buf)
		assert.Equal(t, float64(http.StatusOK), entry["status"])
		assert.Equal(t, float64(len("no explicit status")), entry["bytes"])
	})

	t.Run("nothing written", func(t *testing.T) {
		var buf bytes.Buffer
		handler := Middleware(newLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, float64(http.StatusOK), decode(t, &buf)["status"])
	})
}
