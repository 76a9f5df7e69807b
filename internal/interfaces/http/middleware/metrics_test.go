package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeter sets up a test meter provider and reader.
func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

// collectMetrics collects metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findMetricByName finds a metric by name in the collected metrics.
func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_NilMeterProvider(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	mp, reader := setupTestMeter(t)
	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("test"), false))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, findMetricByName(collectMetrics(t, reader), "http_server_request_total"))
}

func TestHTTPMetrics_RecordsByRoute(t *testing.T) {
	mp, reader := setupTestMeter(t)
	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("test"), true))
	router.GET("/api/v1/persons/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.POST("/api/v1/persons", func(c *gin.Context) {
		c.Status(http.StatusUnprocessableEntity)
	})

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/persons/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/persons", strings.NewReader(`{"legal_name":"Alice"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	rm := collectMetrics(t, reader)
	total := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(telemetry.AttrHTTPRoute)
		status, _ := dp.Attributes.Value(telemetry.AttrHTTPStatusCode)
		counts[route.AsString()+" "+status.Emit()] += dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/api/v1/persons/:id 200": 2,
		"/api/v1/persons 422":     1,
	}, counts)

	duration := findMetricByName(rm, "http_server_request_duration_seconds")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var observations uint64
	for _, dp := range hist.DataPoints {
		observations += dp.Count
		_, hasStatus := dp.Attributes.Value(telemetry.AttrHTTPStatusCode)
		assert.False(t, hasStatus)
		_, hasClass := dp.Attributes.Value(telemetry.AttrHTTPStatusClass)
		assert.True(t, hasClass)
	}
	assert.Equal(t, uint64(3), observations)

	requestSize := findMetricByName(rm, "http_server_request_size_bytes")
	require.NotNil(t, requestSize)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	mp, reader := setupTestMeter(t)
	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("test"), true))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere/123", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	total := findMetricByName(collectMetrics(t, reader), "http_server_request_total")
	require.NotNil(t, total)
	sum := total.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.True(t, sum.DataPoints[0].Attributes.HasValue(telemetry.AttrHTTPRoute))
	route, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrHTTPRoute)
	assert.Equal(t, attribute.StringValue("unknown"), route)
}

func TestHTTPMetricsStatusGroup(t *testing.T) {
	assert.Equal(t, "2xx", HTTPMetricsStatusGroup(201))
	assert.Equal(t, "3xx", HTTPMetricsStatusGroup(304))
	assert.Equal(t, "4xx", HTTPMetricsStatusGroup(409))
	assert.Equal(t, "5xx", HTTPMetricsStatusGroup(503))
	assert.Equal(t, "other", HTTPMetricsStatusGroup(101))
	assert.Equal(t, "other", HTTPMetricsStatusGroup(600))
}
