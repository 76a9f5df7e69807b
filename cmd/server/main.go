package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	appevent "github.com/persona/backend/internal/application/event"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/application/projection"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/auth"
	"github.com/persona/backend/internal/infrastructure/cache"
	"github.com/persona/backend/internal/infrastructure/config"
	"github.com/persona/backend/internal/infrastructure/event"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"github.com/persona/backend/internal/infrastructure/taxonomy"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"github.com/persona/backend/internal/interfaces/http/handler"
	"github.com/persona/backend/internal/interfaces/http/middleware"
	"github.com/persona/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			Persona Records API
//	@version		1.0
//	@description	Event-sourced person records with temporal, provenance-tracked attributes

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OTLP logs bridge; when disabled the logger is returned unchanged
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting person record service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	personMetrics, err := telemetry.NewPersonMetrics(meterProvider.Meter("persona/person"))
	if err != nil {
		log.Fatal("Failed to create person metrics", zap.Error(err))
	}

	// Continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Telemetry.ProfilingEnabled && tracerProvider.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to link spans to profiles", zap.Error(err))
		}
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		persistence.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver()))

	// Postgres schemas come from cmd/migrate; sqlite is created in place
	if db.Driver() == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create schema", zap.Error(err))
		}
	}

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	dbTracing.DBSystem = db.DBSystem()
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.MetricsEnabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}

	// Taxonomy
	tax := person.NewTaxonomy()
	if cfg.Taxonomy.Path != "" {
		tax, err = taxonomy.LoadFile(cfg.Taxonomy.Path)
		if err != nil {
			log.Fatal("Failed to load attribute taxonomy", zap.String("path", cfg.Taxonomy.Path), zap.Error(err))
		}
		log.Info("Attribute taxonomy loaded", zap.String("path", cfg.Taxonomy.Path))
	}
	if err := middleware.SetupValidator(tax); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	// Event store and read models
	eventStore := persistence.NewGormEventStore(db.DB, event.NewPersonEventSerializer())
	categories := make(map[person.Category]readmodel.Store[readmodel.CategoryView], len(readmodel.MaterializedCategories))
	for _, c := range readmodel.MaterializedCategories {
		categories[c] = persistence.NewGormReadModelStore[readmodel.CategoryView](db.DB, readmodel.CategoryCollection(c))
	}
	stores := readmodel.Stores{
		Summary:    persistence.NewGormReadModelStore[readmodel.PersonSummary](db.DB, readmodel.CollectionSummary),
		Search:     persistence.NewGormReadModelStore[readmodel.SearchDocument](db.DB, readmodel.CollectionSearch),
		Timeline:   persistence.NewGormReadModelStore[readmodel.Timeline](db.DB, readmodel.CollectionTimeline),
		Categories: categories,
	}

	// Event bus and projections
	eventBus := event.NewInMemoryEventBus(log)
	projector := projection.NewProjector(stores, eventStore, log,
		projection.WithMetrics(personMetrics),
		projection.WithBatchSize(cfg.Event.BatchSize),
	)

	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	projectorDelivery := event.NewIdempotentHandler(projector, idempotencyStore, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
		event.WithHandlerName("PersonProjector"),
	)
	eventBus.Subscribe(projectorDelivery)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	var relay *event.Relay
	if cfg.Event.RelayEnabled {
		relay = event.NewRelay(eventStore, eventBus, event.RelayConfig{
			BatchSize:    cfg.Event.BatchSize,
			PollInterval: cfg.Event.PollInterval,
			Grace:        cfg.Event.RelayGrace,
		}, log)
		if err := relay.Start(ctx); err != nil {
			log.Fatal("Failed to start event relay", zap.Error(err))
		}
		log.Info("Event relay started",
			zap.Int("batch_size", cfg.Event.BatchSize),
			zap.Duration("poll_interval", cfg.Event.PollInterval),
		)
	}

	if cfg.Event.RebuildOnStart {
		stats, err := projector.Rebuild(ctx)
		if err != nil {
			log.Fatal("Failed to rebuild read models", zap.Error(err))
		}
		log.Info("Read models rebuilt",
			zap.Int("events", stats.Events),
			zap.Strings("views", stats.Views),
			zap.Duration("duration", stats.Duration),
		)
	}

	// Application services
	decider := person.NewDecider(tax, person.WithMergeThreshold(cfg.Merge.Threshold))
	commandService := apperson.NewCommandService(eventStore, eventBus, decider, log,
		apperson.WithPersonMetrics(personMetrics),
	)
	queryService := apperson.NewQueryService(stores, eventStore, log,
		apperson.WithQueryMetrics(personMetrics),
		apperson.WithSimilarityThreshold(cfg.Merge.Threshold),
	)
	translator := apperson.NewExternalTranslator(commandService, log)
	deadLetterService := appevent.NewDeadLetterService(eventStore, log)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	authConfig := middleware.AuthConfig{DefaultActor: cfg.Auth.DefaultActor}
	if cfg.Auth.Enabled {
		authConfig = middleware.DefaultAuthConfig(auth.NewJWTService(cfg.Auth))
		authConfig.DefaultActor = cfg.Auth.DefaultActor
	}

	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	tracingConfig.Enabled = tracerProvider.IsEnabled()

	securityConfig := middleware.DefaultSecurityConfig()
	securityConfig.HSTSEnabled = cfg.App.Env == "production"

	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = cfg.Telemetry.ProfilingEnabled

	engine := router.NewEngine(router.EngineConfig{
		Logger:         log,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORS:           corsConfig,
		Security:       securityConfig,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		Auth:           authConfig,
		Tracing:        tracingConfig,
		MeterProvider:  meterProvider,
		Profiling:      profilingConfig,
	}, router.Handlers{
		Commands: handler.NewPersonCommandHandler(commandService),
		Queries:  handler.NewPersonQueryHandler(queryService),
		Admin:    handler.NewAdminHandler(deadLetterService, projector),
		External: handler.NewExternalEventHandler(translator),
		System:   handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, db),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if relay != nil {
		if err := relay.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event relay", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	log.Info("Projector deliveries", zap.Any("stats", projectorDelivery.Stats()))
	if err := idempotencyStore.Close(); err != nil {
		log.Error("Error closing idempotency store", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logs provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
