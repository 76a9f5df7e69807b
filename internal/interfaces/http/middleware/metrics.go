package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that matched no registered route, so a
// scan of random person IDs cannot blow up the route attribute.
const unmatchedRoute = "unknown"

var bodySizeBuckets = []float64{128, 512, 1024, 4096, 16384, 65536, 262144, 1048576}

type httpMetrics struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error
	if m.requests, err = telemetry.NewCounter(meter,
		"http_server_request_total", "HTTP requests by route and status", "{request}"); err != nil {
		return nil, err
	}
	if m.duration, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency by route and status class",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.requestSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "Declared request body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.responseSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "Written response body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *httpMetrics) handle(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	m.inFlight.Add(ctx, 1)
	defer m.inFlight.Add(ctx, -1)
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	status := c.Writer.Status()
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
	}

	m.requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(status))...)
	m.duration.RecordDuration(ctx, time.Since(start),
		append(attrs, telemetry.AttrHTTPStatusClass.String(HTTPMetricsStatusGroup(status)))...)
	if n := c.Request.ContentLength; n > 0 {
		m.requestSize.Record(ctx, float64(n), attrs...)
	}
	if n := c.Writer.Size(); n > 0 {
		m.responseSize.Record(ctx, float64(n), attrs...)
	}
}

func passThrough(c *gin.Context) { c.Next() }

// HTTPMetrics records request counts, latency and body sizes on the
// provider's "http.server" meter. It passes requests through untouched when
// metrics are disabled.
func HTTPMetrics(mp *telemetry.MeterProvider) gin.HandlerFunc {
	if !mp.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(mp.Meter("http.server"), true)
}

// HTTPMetricsWithMeter is HTTPMetrics over an explicit meter. Instrument
// creation failures degrade to a pass-through.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}
	return m.handle
}

// HTTPMetricsStatusGroup returns the status class, e.g. "4xx"
func HTTPMetricsStatusGroup(statusCode int) string {
	if statusCode < 200 || statusCode > 599 {
		return "other"
	}
	return string(rune('0'+statusCode/100)) + "xx"
}
