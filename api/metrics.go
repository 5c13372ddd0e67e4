package api

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// RequestTrace tracks timing for a single request
type RequestTrace struct {
	RequestID         string              `json:"requestId"`
	Method            string              `json:"method"`
	Path              string              `json:"path"`
	Status            int                 `json:"status"`
	StartTime         time.Time           `json:"startTime"`
	EndTime           time.Time           `json:"endTime"`
	TotalDuration     time.Duration       `json:"totalDuration"`
	UpstreamCalls     []UpstreamCallTrace `json:"upstreamCalls"`
	UpstreamTotalTime time.Duration       `json:"upstreamTotalTime"`
	Error             string              `json:"error,omitempty"`
}

// UpstreamCallTrace tracks a single call to the completion provider
type UpstreamCallTrace struct {
	Provider  string        `json:"provider"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// RouteMetrics aggregates metrics for a specific route
type RouteMetrics struct {
	Method            string        `json:"method"`
	Path              string        `json:"path"`
	Count             int64         `json:"count"`
	ErrorCount        int64         `json:"errorCount"`
	TotalTime         time.Duration `json:"totalTime"`
	AvgTime           time.Duration `json:"avgTime"`
	MinTime           time.Duration `json:"minTime"`
	MaxTime           time.Duration `json:"maxTime"`
	P50Time           time.Duration `json:"p50Time"`
	P95Time           time.Duration `json:"p95Time"`
	P99Time           time.Duration `json:"p99Time"`
	UpstreamTotalTime time.Duration `json:"upstreamTotalTime"`
	UpstreamAvgTime   time.Duration `json:"upstreamAvgTime"`
	LastRequest       time.Time     `json:"lastRequest"`
}

// Summary is the overall view returned by the summary endpoint
type Summary struct {
	TotalRequests      int64     `json:"totalRequests"`
	TotalErrors        int64     `json:"totalErrors"`
	ErrorRate          float64   `json:"errorRate"`
	TotalUpstreamCalls int64     `json:"totalUpstreamCalls"`
	TotalUpstreamTime  string    `json:"totalUpstreamTime"`
	AvgUpstreamTime    string    `json:"avgUpstreamTime"`
	WindowStart        time.Time `json:"windowStart"`
	RouteCount         int       `json:"routeCount"`
	TraceCount         int       `json:"traceCount"`
}

// MetricsCollector collects and aggregates request metrics. Traces are queued
// on a buffered channel and dropped when it is full, so recording never
// blocks a request.
type MetricsCollector struct {
	mu                 sync.RWMutex
	traces             []RequestTrace
	maxTraces          int
	routeMetrics       map[string]*RouteMetrics
	windowStart        time.Time
	windowDuration     time.Duration
	totalRequests      int64
	totalErrors        int64
	totalUpstreamCalls int64
	totalUpstreamTime  time.Duration
	traceChan          chan RequestTrace
	stopChan           chan struct{}
	stopOnce           sync.Once
}

// NewMetricsCollector starts a collector keeping at most maxTraces traces
// for windowDuration
func NewMetricsCollector(maxTraces int, windowDuration time.Duration) *MetricsCollector {
	mc := &MetricsCollector{
		traces:         make([]RequestTrace, 0, maxTraces),
		maxTraces:      maxTraces,
		routeMetrics:   make(map[string]*RouteMetrics),
		windowStart:    time.Now(),
		windowDuration: windowDuration,
		traceChan:      make(chan RequestTrace, 1000),
		stopChan:       make(chan struct{}),
	}
	go mc.processTraces()
	return mc
}

// Close stops the background processor
func (mc *MetricsCollector) Close() {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
}

// RecordTrace queues a trace without blocking
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTraces() {
	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case <-mc.stopChan:
			return
		}
	}
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.traces) >= mc.maxTraces && len(mc.traces) > 0 {
		mc.traces = mc.traces[1:]
	}
	mc.traces = append(mc.traces, trace)

	routeKey := routeKeyOf(trace)
	metrics, exists := mc.routeMetrics[routeKey]
	if !exists {
		metrics = &RouteMetrics{
			Method:  trace.Method,
			Path:    normalizeRoutePath(trace.Path),
			MinTime: trace.TotalDuration,
		}
		mc.routeMetrics[routeKey] = metrics
	}

	metrics.Count++
	metrics.TotalTime += trace.TotalDuration
	metrics.AvgTime = metrics.TotalTime / time.Duration(metrics.Count)
	metrics.LastRequest = trace.StartTime
	if trace.TotalDuration < metrics.MinTime {
		metrics.MinTime = trace.TotalDuration
	}
	if trace.TotalDuration > metrics.MaxTime {
		metrics.MaxTime = trace.TotalDuration
	}
	if trace.Status >= 400 {
		metrics.ErrorCount++
		mc.totalErrors++
	}
	metrics.UpstreamTotalTime += trace.UpstreamTotalTime
	metrics.UpstreamAvgTime = metrics.UpstreamTotalTime / time.Duration(metrics.Count)

	mc.totalRequests++
	mc.totalUpstreamCalls += int64(len(trace.UpstreamCalls))
	mc.totalUpstreamTime += trace.UpstreamTotalTime

	if metrics.Count%100 == 0 {
		mc.calculatePercentiles(routeKey)
	}
}

func routeKeyOf(trace RequestTrace) string {
	return trace.Method + " " + normalizeRoutePath(trace.Path)
}

// GetTraces returns up to limit traces started after since, oldest first
func (mc *MetricsCollector) GetTraces(limit int, since time.Time) []RequestTrace {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var filtered []RequestTrace
	for i := len(mc.traces) - 1; i >= 0 && len(filtered) < limit; i-- {
		if mc.traces[i].StartTime.After(since) {
			filtered = append([]RequestTrace{mc.traces[i]}, filtered...)
		}
	}
	return filtered
}

// GetRouteMetrics returns a copy of the per-route aggregates
func (mc *MetricsCollector) GetRouteMetrics() map[string]RouteMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]RouteMetrics, len(mc.routeMetrics))
	for k, v := range mc.routeMetrics {
		result[k] = *v
	}
	return result
}

// GetSummary returns overall summary metrics
func (mc *MetricsCollector) GetSummary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var errorRate float64
	if mc.totalRequests > 0 {
		errorRate = float64(mc.totalErrors) / float64(mc.totalRequests)
	}
	var avgUpstream time.Duration
	if mc.totalUpstreamCalls > 0 {
		avgUpstream = mc.totalUpstreamTime / time.Duration(mc.totalUpstreamCalls)
	}

	return Summary{
		TotalRequests:      mc.totalRequests,
		TotalErrors:        mc.totalErrors,
		ErrorRate:          errorRate,
		TotalUpstreamCalls: mc.totalUpstreamCalls,
		TotalUpstreamTime:  mc.totalUpstreamTime.String(),
		AvgUpstreamTime:    avgUpstream.String(),
		WindowStart:        mc.windowStart,
		RouteCount:         len(mc.routeMetrics),
		TraceCount:         len(mc.traces),
	}
}

// GetSlowestRoutes returns routes by descending average time
func (mc *MetricsCollector) GetSlowestRoutes(limit, offset int) []RouteMetrics {
	return mc.sortedRoutes(limit, offset, func(a, b RouteMetrics) bool { return a.AvgTime > b.AvgTime })
}

// GetMostFrequentRoutes returns routes by descending request count
func (mc *MetricsCollector) GetMostFrequentRoutes(limit, offset int) []RouteMetrics {
	return mc.sortedRoutes(limit, offset, func(a, b RouteMetrics) bool { return a.Count > b.Count })
}

func (mc *MetricsCollector) sortedRoutes(limit, offset int, less func(a, b RouteMetrics) bool) []RouteMetrics {
	mc.mu.RLock()
	routes := make([]RouteMetrics, 0, len(mc.routeMetrics))
	for _, m := range mc.routeMetrics {
		routes = append(routes, *m)
	}
	mc.mu.RUnlock()

	sort.Slice(routes, func(i, j int) bool { return less(routes[i], routes[j]) })

	if offset >= len(routes) {
		return []RouteMetrics{}
	}
	end := offset + limit
	if end > len(routes) {
		end = len(routes)
	}
	return routes[offset:end]
}

func (mc *MetricsCollector) calculatePercentiles(routeKey string) {
	metrics := mc.routeMetrics[routeKey]
	if metrics == nil {
		return
	}

	var durations []time.Duration
	for _, trace := range mc.traces {
		if routeKeyOf(trace) == routeKey {
			durations = append(durations, trace.TotalDuration)
		}
	}
	if len(durations) == 0 {
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	at := func(p float64) time.Duration {
		idx := int(float64(len(durations)) * p)
		if idx >= len(durations) {
			idx = len(durations) - 1
		}
		return durations[idx]
	}
	metrics.P50Time = at(0.50)
	metrics.P95Time = at(0.95)
	metrics.P99Time = at(0.99)
}

// Prune drops traces older than the window and restarts an expired window.
// The scheduler calls it periodically.
func (mc *MetricsCollector) Prune(now time.Time) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cutoff := now.Add(-mc.windowDuration)
	kept := mc.traces[:0]
	for _, trace := range mc.traces {
		if trace.StartTime.After(cutoff) {
			kept = append(kept, trace)
		}
	}
	dropped := len(mc.traces) - len(kept)
	mc.traces = kept

	if now.Sub(mc.windowStart) > mc.windowDuration {
		mc.windowStart = now
	}
	return dropped
}

var (
	uuidSegment    = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)
	numericSegment = regexp.MustCompile(`/\d{6,}(/|$)`)
)

// normalizeRoutePath replaces id-like segments with {id}
//   - /api/v1/x/3f2b8c1e-1a2b-4c3d-9e8f-0123456789ab/y -> /api/v1/x/{id}/y
func normalizeRoutePath(path string) string {
	path = uuidSegment.ReplaceAllString(path, "/{id}$1")
	path = numericSegment.ReplaceAllString(path, "/{id}$1")
	path = strings.ReplaceAll(path, "//", "/")
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

type requestTraceContextKey struct{}

// requestTraceContext holds a trace being built during request processing
type requestTraceContext struct {
	trace *RequestTrace
	mu    sync.Mutex
}

func getRequestTraceFromContext(ctx context.Context) *requestTraceContext {
	if val, ok := ctx.Value(requestTraceContextKey{}).(*requestTraceContext); ok {
		return val
	}
	return nil
}

// WithRequestTrace adds request trace to context
func WithRequestTrace(ctx context.Context, trace *RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceContextKey{}, &requestTraceContext{trace: trace})
}

// snapshot copies the trace under its lock; upstream calls may still be
// recorded by a completion that outlived the handler
func (rt *requestTraceContext) snapshot() RequestTrace {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t := *rt.trace
	t.UpstreamCalls = append([]UpstreamCallTrace(nil), rt.trace.UpstreamCalls...)
	return t
}

// RecordUpstreamCallFromContext attaches an upstream call to the request
// trace in ctx. Without a trace it does nothing.
func RecordUpstreamCallFromContext(ctx context.Context, provider, operation string, duration time.Duration, err error) {
	reqTrace := getRequestTraceFromContext(ctx)
	if reqTrace == nil || reqTrace.trace == nil {
		return
	}

	call := UpstreamCallTrace{
		Provider:  provider,
		Operation: operation,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	if err != nil {
		call.Error = err.Error()
	}
	reqTrace.mu.Lock()
	reqTrace.trace.UpstreamCalls = append(reqTrace.trace.UpstreamCalls, call)
	reqTrace.trace.UpstreamTotalTime += duration
	reqTrace.mu.Unlock()
}
