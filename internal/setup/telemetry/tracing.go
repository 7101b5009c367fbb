package telemetry

import (
	"context"

	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ConfigureTracing installs the Uptrace OpenTelemetry exporters when a DSN is
// configured. The returned function flushes and shuts them down; it is a no-op
// when tracing is disabled.
func ConfigureTracing(cfg *config.Telemetry, serviceType ServiceType, logger *zap.Logger) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		logger.Debug("Tracing export disabled")
		return func(context.Context) error { return nil }
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ghostscore-" + serviceType.String()
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(serviceName),
		uptrace.WithServiceVersion(config.RepositoryVersion),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	logger.Info("Tracing export enabled",
		zap.String("service", serviceName),
		zap.String("environment", cfg.Environment))

	return uptrace.Shutdown
}
