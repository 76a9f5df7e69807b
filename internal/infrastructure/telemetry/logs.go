package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig holds logs bridge configuration.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
}

// LoggerProvider exports zap records as OTLP logs, correlated with the
// active span through the record context.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
	scope    string
}

// LoggerProviderOption customizes NewLoggerProvider
type LoggerProviderOption func(*loggerProviderOptions)

type loggerProviderOptions struct {
	processor sdklog.Processor
}

// WithLogProcessor replaces the OTLP batch exporter
func WithLogProcessor(p sdklog.Processor) LoggerProviderOption {
	return func(o *loggerProviderOptions) {
		o.processor = p
	}
}

// NewLoggerProvider creates the OTLP logs pipeline. When disabled, Bridge
// returns its logger unchanged.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger, opts ...LoggerProviderOption) (*LoggerProvider, error) {
	lp := &LoggerProvider{logger: logger, scope: cfg.ServiceName}
	if !cfg.Enabled {
		logger.Info("OTLP logs disabled")
		return lp, nil
	}

	var o loggerProviderOptions
	for _, opt := range opts {
		opt(&o)
	}
	processor := o.processor
	if processor == nil {
		exporterOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
		}
		exporter, err := otlploggrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP log exporter: %w", err)
		}
		processor = sdklog.NewBatchProcessor(exporter)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	lp.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)
	global.SetLoggerProvider(lp.provider)

	logger.Info("logger provider started", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return lp, nil
}

// IsEnabled reports whether records are exported
func (lp *LoggerProvider) IsEnabled() bool {
	return lp.provider != nil
}

// Bridge tees base into the OTLP pipeline. Only records at or above level
// are exported; base keeps its own level.
func (lp *LoggerProvider) Bridge(base *zap.Logger, level zapcore.Level) *zap.Logger {
	if !lp.IsEnabled() {
		return base
	}
	exported, err := zapcore.NewIncreaseLevelCore(
		otelzap.NewCore(lp.scope, otelzap.WithLoggerProvider(lp.provider)),
		level,
	)
	if err != nil {
		lp.logger.Warn("OTLP logs bridge not installed", zap.Error(err))
		return base
	}
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, exported)
	}))
}

// Shutdown flushes and stops the provider, waiting at most shutdownTimeout
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := lp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown logger provider: %w", err)
	}
	return nil
}
