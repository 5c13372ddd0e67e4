package handlers

import (
	"net/http"
	"strconv"

	"github.com/linesmerrill/adr-report-api/api"
)

// MetricsHandler handles metrics dashboard requests
type MetricsHandler struct {
	Metrics *api.MetricsCollector
}

// formatRouteMetrics converts duration fields to milliseconds for JSON serialization
func formatRouteMetrics(routes []api.RouteMetrics) []map[string]interface{} {
	result := make([]map[string]interface{}, len(routes))
	for i, route := range routes {
		result[i] = map[string]interface{}{
			"method":          route.Method,
			"path":            route.Path,
			"count":           route.Count,
			"errorCount":      route.ErrorCount,
			"avgTime":         route.AvgTime.Milliseconds(),
			"minTime":         route.MinTime.Milliseconds(),
			"maxTime":         route.MaxTime.Milliseconds(),
			"p50Time":         route.P50Time.Milliseconds(),
			"p95Time":         route.P95Time.Milliseconds(),
			"p99Time":         route.P99Time.Milliseconds(),
			"upstreamAvgTime": route.UpstreamAvgTime.Milliseconds(),
			"lastRequest":     route.LastRequest,
		}
	}
	return result
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

// GetMetricsSummary returns request and upstream totals for the current window
func (m MetricsHandler) GetMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Metrics.GetSummary())
}

// GetRouteMetrics returns per-route timings, sorted by ?sort=slowest (default) or frequent
func (m MetricsHandler) GetRouteMetrics(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	var routes []api.RouteMetrics
	if r.URL.Query().Get("sort") == "frequent" {
		routes = m.Metrics.GetMostFrequentRoutes(limit, offset)
	} else {
		routes = m.Metrics.GetSlowestRoutes(limit, offset)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes": formatRouteMetrics(routes),
		"limit":  limit,
		"offset": offset,
	})
}
