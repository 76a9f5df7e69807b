package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	appevent "github.com/persona/backend/internal/application/event"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/application/projection"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/infrastructure/auth"
	"github.com/persona/backend/internal/infrastructure/config"
	"github.com/persona/backend/internal/infrastructure/event"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"github.com/persona/backend/internal/interfaces/http/handler"
	"github.com/persona/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(person.NewTaxonomy()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var order []string
	r.Use(func(c *gin.Context) {
		order = append(order, "router")
		c.Next()
	})
	group := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
		order = append(order, "group")
		c.Next()
	})
	group.GET("/ping", func(c *gin.Context) {
		order = append(order, "handler")
		c.String(http.StatusOK, "pong")
	})
	group.Group("nested", "/nested").PUT("/item", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, []string{"router", "group", "handler"}, order)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/test/nested/item", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDomainGroup(t *testing.T) {
	dg := NewDomainGroup("persons", "/persons")
	assert.Equal(t, "persons", dg.Name())
	assert.Equal(t, "/persons", dg.Prefix())

	noop := func(c *gin.Context) {}
	dg.GET("", noop).POST("", noop).PUT("/:id/name", noop)
	require.Len(t, dg.routes, 3)
	assert.Equal(t, "PUT", dg.routes[2].method)
	assert.Equal(t, "/:id/name", dg.routes[2].path)
}

// testHandlers builds every handler over memory stores
func testHandlers(t *testing.T) Handlers {
	t.Helper()
	log := zap.NewNop()
	store := persistence.NewMemoryEventStore()
	stores := readmodel.Stores{
		Summary:    persistence.NewMemoryReadModelStore[readmodel.PersonSummary](readmodel.CollectionSummary),
		Search:     persistence.NewMemoryReadModelStore[readmodel.SearchDocument](readmodel.CollectionSearch),
		Timeline:   persistence.NewMemoryReadModelStore[readmodel.Timeline](readmodel.CollectionTimeline),
		Categories: map[person.Category]readmodel.Store[readmodel.CategoryView]{},
	}
	bus := event.NewInMemoryEventBus(log)
	projector := projection.NewProjector(stores, store, log)
	bus.Subscribe(projector)
	commands := apperson.NewCommandService(store, bus, person.NewDecider(nil), log)

	return Handlers{
		Commands: handler.NewPersonCommandHandler(commands),
		Queries:  handler.NewPersonQueryHandler(apperson.NewQueryService(stores, store, log)),
		Admin:    handler.NewAdminHandler(appevent.NewDeadLetterService(store, log), projector),
		External: handler.NewExternalEventHandler(apperson.NewExternalTranslator(commands, log)),
		System:   handler.NewSystemHandler("persona", "test", nil),
	}
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		CORS:           middleware.DefaultCORSConfig(),
		Security:       middleware.DefaultSecurityConfig(),
		MaxBodySize:    1 << 20,
		RequestTimeout: 5 * time.Second,
		Auth:           middleware.AuthConfig{DefaultActor: "anonymous"},
		Tracing:        middleware.TracingConfig{Enabled: false},
		Profiling:      middleware.ProfilingConfig{Enabled: false},
	}
}

func TestNewEngine_Routes(t *testing.T) {
	engine := NewEngine(testEngineConfig(), testHandlers(t))

	routes := make(map[string]bool)
	for _, route := range engine.Routes() {
		routes[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /api/v1/system/health",
		"GET /api/v1/system/info",
		"GET /api/v1/persons",
		"POST /api/v1/persons",
		"GET /api/v1/persons/search",
		"GET /api/v1/persons/:id",
		"PUT /api/v1/persons/:id/name",
		"GET /api/v1/persons/:id/attributes",
		"POST /api/v1/persons/:id/attributes",
		"PUT /api/v1/persons/:id/attributes",
		"POST /api/v1/persons/:id/attributes/invalidate",
		"GET /api/v1/persons/:id/timeline",
		"GET /api/v1/persons/:id/categories/:category",
		"GET /api/v1/persons/:id/similarity/:other",
		"POST /api/v1/persons/:id/deactivate",
		"POST /api/v1/persons/:id/reactivate",
		"POST /api/v1/persons/:id/death",
		"POST /api/v1/persons/:id/merge",
		"POST /api/v1/external-events",
		"GET /api/v1/external-events/types",
		"GET /api/v1/admin/dead-letters",
		"POST /api/v1/admin/dead-letters/retry-all",
		"POST /api/v1/admin/dead-letters/:event_id/retry",
		"POST /api/v1/admin/projections/rebuild",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}

func TestNewEngine_CreateAndRead(t *testing.T) {
	engine := NewEngine(testEngineConfig(), testHandlers(t))

	body, err := json.Marshal(map[string]any{"legal_name": "Alice Smith"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/persons", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	location := w.Header().Get("Location")
	require.NotEmpty(t, location)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, location+"/timeline", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data readmodel.Timeline `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "anonymous", resp.Data.Entries[0].Actor)
}

func TestNewEngine_Authentication(t *testing.T) {
	jwtService := auth.NewJWTService(config.AuthConfig{
		Enabled: true,
		Secret:  "test-secret-key-at-least-32-chars",
		Issuer:  "persona-test",
	})
	cfg := testEngineConfig()
	cfg.Auth = middleware.DefaultAuthConfig(jwtService)
	engine := NewEngine(cfg, testHandlers(t))

	token := func(roles ...string) string {
		tok, err := jwtService.GenerateToken(auth.GenerateTokenInput{Subject: "user-1", Name: "clerk", Roles: roles, TTL: time.Hour})
		require.NoError(t, err)
		return "Bearer " + tok
	}
	get := func(path, authorization string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/health", ""))
	assert.Equal(t, http.StatusOK, get("/api/v1/system/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/persons", ""))
	assert.Equal(t, http.StatusOK, get("/api/v1/persons", token()))
	assert.Equal(t, http.StatusForbidden, get("/api/v1/admin/dead-letters", token("clerk")))
	assert.Equal(t, http.StatusOK, get("/api/v1/admin/dead-letters", token(auth.RoleAdmin)))
}
