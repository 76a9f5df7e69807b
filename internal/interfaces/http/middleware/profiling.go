package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/persona/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	// Enabled controls whether profiling labels are added to requests.
	Enabled bool
	// SkipPaths are paths that don't need profiling labels (e.g., health checks).
	SkipPaths []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/api/v1/system/health"},
	}
}

// ProfilingWithConfig labels profile samples taken while a request runs
// with its method, route and resource, so CPU time can be split by
// endpoint in Pyroscope.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}

		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// profilingLabels extracts low-cardinality labels from the matched route
func profilingLabels(c *gin.Context) telemetry.ProfilingLabels {
	labels := telemetry.ProfilingLabels{"component": "http", "method": c.Request.Method}
	route := c.FullPath()
	if route == "" {
		return labels
	}
	labels["route"] = route
	if resource := resourceFromRoute(route); resource != "" {
		labels["resource"] = resource
	}
	return labels
}

// resourceFromRoute returns the first route segment after the API version,
// e.g. "persons" for "/api/v1/persons/:id/timeline"
func resourceFromRoute(route string) string {
	for _, segment := range strings.Split(strings.Trim(route, "/"), "/") {
		if segment == "" || segment == "api" || strings.HasPrefix(segment, ":") || isVersionSegment(segment) {
			continue
		}
		return segment
	}
	return ""
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || segment[0] != 'v' {
		return false
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
