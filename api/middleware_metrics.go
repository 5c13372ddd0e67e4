package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlowRequestThreshold is the duration above which a request is logged
const SlowRequestThreshold = 2 * time.Second

// MetricsMiddleware tracks request timing and feeds the collector
func MetricsMiddleware(mc *MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || strings.HasPrefix(path, "/api/v1/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			requestID := uuid.New().String()

			trace := &RequestTrace{
				RequestID:     requestID,
				Method:        r.Method,
				Path:          path,
				StartTime:     startTime,
				UpstreamCalls: make([]UpstreamCallTrace, 0),
			}
			ctx := WithRequestTrace(r.Context(), trace)
			reqTrace := getRequestTraceFromContext(ctx)
			w.Header().Set("X-Request-ID", requestID)

			wrappedWriter := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrappedWriter, r.WithContext(ctx))

			reqTrace.mu.Lock()
			trace.EndTime = time.Now()
			trace.TotalDuration = trace.EndTime.Sub(startTime)
			trace.Status = wrappedWriter.statusCode
			if wrappedWriter.statusCode >= 400 {
				trace.Error = http.StatusText(wrappedWriter.statusCode)
			}
			reqTrace.mu.Unlock()

			final := reqTrace.snapshot()
			mc.RecordTrace(final)

			if final.TotalDuration > SlowRequestThreshold {
				zap.S().Warnw("Slow request detected",
					"requestId", requestID,
					"method", final.Method,
					"path", final.Path,
					"duration", final.TotalDuration,
					"status", final.Status,
					"upstreamCalls", len(final.UpstreamCalls),
					"upstreamTime", final.UpstreamTotalTime,
				)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
// It implements http.Hijacker to support WebSocket upgrades
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker to support WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		rw.statusCode = http.StatusSwitchingProtocols
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
