package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func newTracedRouter(status int) *gin.Engine {
	router := gin.New()
	router.Use(
		RequestID(),
		TracingWithConfig(DefaultTracingConfig()),
		SpanErrorMarker(),
		Authenticate(DefaultAuthConfig(nil)),
		TracingAttributeInjector(),
	)
	router.GET("/api/v1/persons/:id", func(c *gin.Context) {
		c.Status(status)
	})
	return router
}

func TestTracing_InjectsRequestAttributes(t *testing.T) {
	recorder := setupTestTracer(t)
	router := newTracedRouter(http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/3f2c", nil)
	req.Header.Set(RequestIDHeader, "req-77")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "req-77", attrs["request_id"].AsString())
	assert.Equal(t, "anonymous", attrs["actor"].AsString())
	assert.Equal(t, "3f2c", attrs["person.id"].AsString())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusNotFound, "Not Found"},
		{http.StatusConflict, "Conflict"},
		{http.StatusUnprocessableEntity, "Rejected"},
		{http.StatusBadRequest, "Client Error"},
		{http.StatusForbidden, "Denied"},
		{http.StatusServiceUnavailable, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			recorder := setupTestTracer(t)
			router := newTracedRouter(tt.status)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/persons/1", nil))
			require.Equal(t, tt.status, w.Code)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			if tt.status < http.StatusInternalServerError {
				// otelgin sets its own status on server errors
				assert.Equal(t, tt.message, spans[0].Status().Description)
			}
		})
	}
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	recorder := setupTestTracer(t)
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
}

func TestTracingWithConfig_UntracedPaths(t *testing.T) {
	recorder := setupTestTracer(t)
	router := gin.New()
	router.Use(TracingWithConfig(DefaultTracingConfig()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/persons", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/api/v1/persons"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/api/v1/persons")
}
