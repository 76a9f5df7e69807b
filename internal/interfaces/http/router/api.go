package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/persona/backend/internal/infrastructure/auth"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"github.com/persona/backend/internal/interfaces/http/handler"
	"github.com/persona/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Handlers are the endpoints mounted by NewEngine
type Handlers struct {
	Commands *handler.PersonCommandHandler
	Queries  *handler.PersonQueryHandler
	Admin    *handler.AdminHandler
	External *handler.ExternalEventHandler
	System   *handler.SystemHandler
}

// EngineConfig configures the middleware stack
type EngineConfig struct {
	Logger         *zap.Logger
	TrustedProxies []string
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
	MaxBodySize    int64
	RequestTimeout time.Duration
	Auth           middleware.AuthConfig
	Tracing        middleware.TracingConfig
	MeterProvider  *telemetry.MeterProvider
	Profiling      middleware.ProfilingConfig
}

// NewEngine builds the gin engine with the middleware stack and every
// route of the API.
//
// Middleware order:
//  1. RequestID, so every later log line and error carries it
//  2. request logging and panic recovery
//  3. tracing, then span error marking
//  4. security headers, CORS, body limit and request timeout
//  5. authentication, which resolves the actor
//  6. span attributes, HTTP metrics and profiling labels
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.SpanErrorMarker(),
		middleware.SecureWithConfig(cfg.Security),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.Authenticate(cfg.Auth),
		middleware.TracingAttributeInjector(),
		middleware.HTTPMetrics(cfg.MeterProvider),
		middleware.ProfilingWithConfig(cfg.Profiling),
	)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if h.System != nil {
		r.Register(SystemRoutes(h.System))
	}
	if h.Commands != nil || h.Queries != nil {
		r.Register(PersonRoutes(h.Commands, h.Queries))
	}
	if h.External != nil {
		r.Register(ExternalRoutes(h.External))
	}
	if h.Admin != nil {
		r.Register(AdminRoutes(h.Admin, cfg.Auth.Enabled))
	}
	r.Setup()
	return engine
}

// PersonRoutes mounts the person commands and queries under /persons
func PersonRoutes(commands *handler.PersonCommandHandler, queries *handler.PersonQueryHandler) *DomainGroup {
	g := NewDomainGroup("persons", "/persons")
	if queries != nil {
		g.GET("", queries.List).
			GET("/search", queries.Search).
			GET("/:id", queries.Get).
			GET("/:id/timeline", queries.Timeline).
			GET("/:id/attributes", queries.Attributes).
			GET("/:id/categories/:category", queries.Category).
			GET("/:id/similarity/:other", queries.Similarity)
	}
	if commands != nil {
		g.POST("", commands.Create).
			PUT("/:id/name", commands.UpdateName).
			POST("/:id/attributes", commands.RecordAttribute).
			PUT("/:id/attributes", commands.UpdateAttribute).
			POST("/:id/attributes/invalidate", commands.InvalidateAttribute).
			POST("/:id/deactivate", commands.Deactivate).
			POST("/:id/reactivate", commands.Reactivate).
			POST("/:id/death", commands.RecordDeath).
			POST("/:id/merge", commands.Merge)
	}
	return g
}

// ExternalRoutes mounts the inbound notification endpoint
func ExternalRoutes(h *handler.ExternalEventHandler) *DomainGroup {
	return NewDomainGroup("external", "/external-events").
		POST("", h.Receive).
		GET("/types", h.Types)
}

// AdminRoutes mounts operator endpoints. With authentication enabled they
// require the admin role.
func AdminRoutes(h *handler.AdminHandler, authEnabled bool) *DomainGroup {
	g := NewDomainGroup("admin", "/admin").Use(middleware.RequireRole(authEnabled, auth.RoleAdmin))
	g.Group("dead-letters", "/dead-letters").
		GET("", h.ListDeadLetters).
		POST("/retry-all", h.RetryAllDeadLetters).
		POST("/:event_id/retry", h.RetryDeadLetter)
	g.Group("projections", "/projections").
		POST("/rebuild", h.RebuildReadModels)
	return g
}

// SystemRoutes mounts health and system information under the API prefix
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/health", h.Health)
}
