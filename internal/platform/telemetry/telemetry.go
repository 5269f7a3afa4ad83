// Package telemetry records request traces and Prometheus metrics for the
// clinical safety engine without pulling in the OpenTelemetry SDK. Collectors
// are registered once at construction and the /metrics handler walks them in
// registration order, so the exposition output is deterministic.
package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// TelemetryConfig tunes the provider. The zero value is a fully working
// development setup; applyDefaults fills the gaps.
type TelemetryConfig struct {
	ServiceName     string
	ServiceVersion  string
	OTLPEndpoint    string // collector endpoint, unused until an exporter ships
	MetricsEnabled  *bool  // nil means enabled
	TracingEnabled  *bool  // nil means enabled
	MetricsInterval time.Duration
	Environment     string
	SampleRate      float64 // fraction of requests traced, 0 < rate <= 1
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinsafe-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1.0
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 15 * time.Second
	}
}

func (c *TelemetryConfig) metricsOn() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

func (c *TelemetryConfig) tracingOn() bool {
	return c.TracingEnabled == nil || *c.TracingEnabled
}

// BoolPtr returns a pointer to b, for the tri-state toggles above.
func BoolPtr(b bool) *bool {
	return &b
}

// ---------------------------------------------------------------------------
// Collectors
// ---------------------------------------------------------------------------

// exposer is a metric family that can write itself in Prometheus text format.
type exposer interface {
	expose(b *strings.Builder)
}

// counterVec is a counter family with at most one label dimension. The empty
// label key marks a plain scalar counter stored under the empty value.
type counterVec struct {
	name  string
	help  string
	label string

	mu   sync.Mutex
	vals map[string]uint64
}

func newCounterVec(name, label, help string) *counterVec {
	return &counterVec{name: name, help: help, label: label, vals: make(map[string]uint64)}
}

func (v *counterVec) inc(labelValue string) {
	v.mu.Lock()
	v.vals[labelValue]++
	v.mu.Unlock()
}

func (v *counterVec) value(labelValue string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vals[labelValue]
}

func (v *counterVec) expose(b *strings.Builder) {
	v.mu.Lock()
	keys := make([]string, 0, len(v.vals))
	for k := range v.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	samples := make([]string, 0, len(keys))
	for _, k := range keys {
		if v.label == "" {
			samples = append(samples, fmt.Sprintf("%s %d\n", v.name, v.vals[k]))
		} else {
			samples = append(samples, fmt.Sprintf("%s{%s=%q} %d\n", v.name, v.label, k, v.vals[k]))
		}
	}
	v.mu.Unlock()

	writeHeader(b, v.name, v.help, "counter")
	if len(samples) == 0 && v.label == "" {
		fmt.Fprintf(b, "%s 0\n", v.name)
	}
	for _, s := range samples {
		b.WriteString(s)
	}
	b.WriteByte('\n')
}

// histogramVec is a histogram family keyed by an ordered label tuple. All
// series share one mutex; observation volume here is one per HTTP request,
// which a single lock handles comfortably.
type histogramVec struct {
	name      string
	help      string
	labelKeys []string
	bounds    []float64

	mu     sync.Mutex
	series map[string]*histogramSeries
}

type histogramSeries struct {
	labelVals []string
	buckets   []uint64 // per-bucket, not cumulative
	count     uint64
	sum       float64
}

func newHistogramVec(name, help string, labelKeys []string, bounds []float64) *histogramVec {
	return &histogramVec{
		name:      name,
		help:      help,
		labelKeys: labelKeys,
		bounds:    bounds,
		series:    make(map[string]*histogramSeries),
	}
}

func (v *histogramVec) observe(labelVals []string, value float64) {
	key := strings.Join(labelVals, "\x1f")

	v.mu.Lock()
	s, ok := v.series[key]
	if !ok {
		s = &histogramSeries{
			labelVals: append([]string(nil), labelVals...),
			buckets:   make([]uint64, len(v.bounds)),
		}
		v.series[key] = s
	}
	if i := sort.SearchFloat64s(v.bounds, value); i < len(v.bounds) {
		s.buckets[i]++
	}
	s.count++
	s.sum += value
	v.mu.Unlock()
}

func (v *histogramVec) seriesCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.series)
}

func (v *histogramVec) total(labelVals []string) uint64 {
	key := strings.Join(labelVals, "\x1f")
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.series[key]
	if !ok {
		return 0
	}
	return s.count
}

func (v *histogramVec) expose(b *strings.Builder) {
	v.mu.Lock()
	keys := make([]string, 0, len(v.series))
	for k := range v.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeHeader(b, v.name, v.help, "histogram")
	for _, k := range keys {
		s := v.series[k]
		labels := labelString(v.labelKeys, s.labelVals)

		var running uint64
		for i, bound := range v.bounds {
			running += s.buckets[i]
			fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", v.name, labels, bound, running)
		}
		fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", v.name, labels, s.count)
		fmt.Fprintf(b, "%s_sum%s %g\n", v.name, braced(labels), s.sum)
		fmt.Fprintf(b, "%s_count%s %d\n", v.name, braced(labels), s.count)
	}
	v.mu.Unlock()
	b.WriteByte('\n')
}

// labelString renders "k1=\"v1\",k2=\"v2\"," with a trailing comma so the le
// label can be appended directly. Empty when there are no labels.
func labelString(keys, vals []string) string {
	if len(keys) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range keys {
		fmt.Fprintf(&sb, "%s=%q,", k, vals[i])
	}
	return sb.String()
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + strings.TrimSuffix(labels, ",") + "}"
}

func writeHeader(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}

// ---------------------------------------------------------------------------
// Span ring
// ---------------------------------------------------------------------------

// Span is one completed request trace.
type Span struct {
	TraceID  string
	SpanID   string
	Method   string
	Route    string
	Status   int
	Domain   string
	Start    time.Time
	Duration time.Duration
}

const spanRingCapacity = 256

// spanRing keeps the most recent spans in a fixed-size buffer so a long
// running process never grows trace memory without bound.
type spanRing struct {
	mu   sync.Mutex
	buf  [spanRingCapacity]Span
	next int
	full bool
}

func (r *spanRing) add(s Span) {
	r.mu.Lock()
	r.buf[r.next] = s
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

func (r *spanRing) snapshot() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Span, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Span, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

var requestDurationBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var payloadSizeBounds = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576}

// TelemetryProvider owns all observability state for the process.
type TelemetryProvider struct {
	cfg TelemetryConfig

	requestDuration *histogramVec
	requestSize     *histogramVec
	responseSize    *histogramVec

	conflictChecks    *counterVec
	conflictsDetected *counterVec
	detectorFailures  *counterVec
	emergencyChecks   *counterVec
	oversightEvents   *counterVec

	registry []exposer

	inFlight   atomic.Int64
	goroutines atomic.Int64
	heapBytes  atomic.Uint64

	sample func() float64

	stop     chan struct{}
	stopOnce sync.Once

	spans spanRing
}

// NewTelemetryProvider builds the provider, registers every metric family and
// starts the runtime sampler when metrics are enabled.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()

	tp := &TelemetryProvider{
		cfg: cfg,
		requestDuration: newHistogramVec("http_request_duration_seconds",
			"HTTP request latency by method, route and status class.",
			[]string{"method", "route", "class"}, requestDurationBounds),
		requestSize: newHistogramVec("http_request_size_bytes",
			"HTTP request body sizes.", nil, payloadSizeBounds),
		responseSize: newHistogramVec("http_response_size_bytes",
			"HTTP response body sizes.", nil, payloadSizeBounds),
		conflictChecks: newCounterVec("safety_conflict_checks_total",
			"outcome", "Conflict detection runs by outcome."),
		conflictsDetected: newCounterVec("safety_conflicts_detected_total",
			"type", "Conflicts detected by conflict type."),
		detectorFailures: newCounterVec("safety_detector_failures_total",
			"", "Conflict detector failures."),
		emergencyChecks: newCounterVec("safety_emergency_checks_total",
			"action", "Emergency checks by verdict action."),
		oversightEvents: newCounterVec("safety_oversight_events_total",
			"event", "Oversight scanner events."),
		sample: mathrand.Float64,
		stop:   make(chan struct{}),
	}
	tp.registry = []exposer{
		tp.requestDuration,
		tp.requestSize,
		tp.responseSize,
		tp.conflictChecks,
		tp.conflictsDetected,
		tp.detectorFailures,
		tp.emergencyChecks,
		tp.oversightEvents,
	}

	if cfg.metricsOn() {
		tp.sampleRuntime()
		go tp.runtimeSampler()
	}
	return tp
}

// Shutdown stops the runtime sampler. Safe to call more than once.
func (tp *TelemetryProvider) Shutdown(_ context.Context) error {
	tp.stopOnce.Do(func() {
		close(tp.stop)
	})
	return nil
}

// RecentSpans returns the retained spans, oldest first.
func (tp *TelemetryProvider) RecentSpans() []Span {
	return tp.spans.snapshot()
}

func (tp *TelemetryProvider) runtimeSampler() {
	ticker := time.NewTicker(tp.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-tp.stop:
			return
		case <-ticker.C:
			tp.sampleRuntime()
		}
	}
}

func (tp *TelemetryProvider) sampleRuntime() {
	tp.goroutines.Store(int64(runtime.NumGoroutine()))
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	tp.heapBytes.Store(ms.HeapAlloc)
}

// ---------------------------------------------------------------------------
// Safety counters
// ---------------------------------------------------------------------------

// ConflictCheckCounter counts one conflict detection run by outcome
// (completed, blocked or failed).
func (tp *TelemetryProvider) ConflictCheckCounter(outcome string) {
	tp.conflictChecks.inc(outcome)
}

// ConflictDetectedCounter counts one detected conflict by conflict type.
func (tp *TelemetryProvider) ConflictDetectedCounter(conflictType string) {
	tp.conflictsDetected.inc(conflictType)
}

// DetectorFailureCounter counts one conflict detector failure.
func (tp *TelemetryProvider) DetectorFailureCounter() {
	tp.detectorFailures.inc("")
}

// EmergencyCheckCounter counts one emergency check by verdict action
// (block, warn or proceed).
func (tp *TelemetryProvider) EmergencyCheckCounter(action string) {
	tp.emergencyChecks.inc(action)
}

// OversightEventCounter counts one oversight scanner event (alert_raised,
// blocked or disclaimer_added).
func (tp *TelemetryProvider) OversightEventCounter(event string) {
	tp.oversightEvents.inc(event)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// TracingMiddleware records a span per sampled request and returns the trace
// id to the caller in X-Trace-Id.
func (tp *TelemetryProvider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.tracingOn() {
				return next(c)
			}
			if tp.cfg.SampleRate < 1 && tp.sample() >= tp.cfg.SampleRate {
				return next(c)
			}

			traceID, spanID := newTraceIDs()
			c.Response().Header().Set("X-Trace-Id", traceID)

			start := time.Now()
			err := next(c)

			req := c.Request()
			tp.spans.add(Span{
				TraceID:  traceID,
				SpanID:   spanID,
				Method:   req.Method,
				Route:    routeOf(c),
				Status:   c.Response().Status,
				Domain:   apiDomain(req.URL.Path),
				Start:    start,
				Duration: time.Since(start),
			})
			return err
		}
	}
}

// MetricsMiddleware records latency and payload size for every request.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.inFlight.Add(1)
			defer tp.inFlight.Add(-1)

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			req := c.Request()
			resp := c.Response()

			tp.requestDuration.observe(
				[]string{req.Method, routeOf(c), statusClass(resp.Status)}, elapsed)
			if req.ContentLength > 0 {
				tp.requestSize.observe(nil, float64(req.ContentLength))
			}
			if resp.Size > 0 {
				tp.responseSize.observe(nil, float64(resp.Size))
			}
			return err
		}
	}
}

// PrometheusHandler serves every registered metric family in text exposition
// format, plus the in-flight and runtime gauges.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHeader(&b, "http_requests_in_flight", "Requests currently being served.", "gauge")
		fmt.Fprintf(&b, "http_requests_in_flight %d\n\n", tp.inFlight.Load())

		writeHeader(&b, "process_goroutines", "Goroutines at the last runtime sample.", "gauge")
		fmt.Fprintf(&b, "process_goroutines %d\n\n", tp.goroutines.Load())

		writeHeader(&b, "process_heap_alloc_bytes", "Heap bytes at the last runtime sample.", "gauge")
		fmt.Fprintf(&b, "process_heap_alloc_bytes %d\n\n", tp.heapBytes.Load())

		for _, ex := range tp.registry {
			ex.expose(&b)
		}

		return c.String(http.StatusOK, b.String())
	}
}

// ---------------------------------------------------------------------------
// Label helpers
// ---------------------------------------------------------------------------

// routeOf prefers the registered route pattern over the raw path so series
// stay bounded when paths carry identifiers.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

// statusClass collapses a status code into its class (2xx, 4xx, ...) to keep
// label cardinality down.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// apiDomain extracts the safety domain segment after /api/v1/ (conflicts,
// emergency, oversight, catalog, audit). Empty for paths outside the API.
func apiDomain(path string) string {
	const prefix = "/api/v1/"
	idx := strings.Index(path, prefix)
	if idx < 0 {
		return ""
	}
	rest := path[idx+len(prefix):]
	if cut := strings.IndexByte(rest, '/'); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

func newTraceIDs() (traceID, spanID string) {
	var raw [24]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:16]), hex.EncodeToString(raw[16:])
}
