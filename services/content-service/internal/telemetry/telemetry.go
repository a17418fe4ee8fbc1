// Package telemetry wires OpenTelemetry tracing and structured logging for
// content-service.
//
// Dependencies:
//   - github.com/ai-aas/shared-go/observability: OpenTelemetry tracer provider setup
//   - github.com/ai-aas/shared-go/logging: zap logger construction
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ai-aas/shared-go/logging"
	"github.com/ai-aas/shared-go/observability"
)

// Telemetry bundles the initialized tracer provider and logger.
type Telemetry struct {
	TracerProvider *observability.Provider
	Logger         *zap.Logger
}

// Config controls telemetry initialization.
type Config struct {
	ServiceName string
	Environment string
	Endpoint    string
	Protocol    string
	Headers     map[string]string
	Insecure    bool
	LogLevel    string
}

// Init initializes OpenTelemetry and structured logging.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	otelCfg := observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Endpoint,
		Protocol:    cfg.Protocol,
		Headers:     cfg.Headers,
		Insecure:    cfg.Insecure,
	}

	tracerProvider, err := observability.Init(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	loggingCfg := logging.DefaultConfig().
		WithServiceName(cfg.ServiceName).
		WithEnvironment(cfg.Environment).
		WithLogLevel(cfg.LogLevel)

	loggerWrapper, err := logging.New(loggingCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	return &Telemetry{
		TracerProvider: tracerProvider,
		Logger:         loggerWrapper.Logger,
	}, nil
}

// MustInit panics if Init returns an error.
func MustInit(ctx context.Context, cfg Config) *Telemetry {
	tel, err := Init(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	return tel
}

// Shutdown tears down the tracer provider and flushes the logger.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error

	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	if t.Logger != nil {
		if err := t.Logger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "sync /dev/stdout") &&
				!strings.Contains(err.Error(), "sync /dev/stderr") {
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	return firstErr
}
