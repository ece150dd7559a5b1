// Command walletsim serves the in-memory payments service simulator.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jose254W/cards/wallet"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/runtime"
	"github.com/jose254W/cards/wallet/server"
	"github.com/jose254W/cards/wallet/walletsim"
	libZap "github.com/jose254W/cards/wallet/zap"
)

const serviceName = "walletsim"

type config struct {
	Addr            string        `env:"WALLETSIM_ADDR"`
	Secret          string        `env:"WALLETSIM_SECRET"`
	UserEmail       string        `env:"WALLETSIM_USER_EMAIL"`
	UserPassword    string        `env:"WALLETSIM_USER_PASSWORD"`
	AccountID       string        `env:"WALLETSIM_ACCOUNT_ID"`
	Merchants       string        `env:"WALLETSIM_MERCHANTS"`
	Latency         time.Duration `env:"WALLETSIM_LATENCY"`
	FailureRate     float64       `env:"WALLETSIM_FAILURE_RATE"`
	Environment     string        `env:"ENV_NAME"`
	LogLevel        string        `env:"LOG_LEVEL"`
	Version         string        `env:"VERSION"`
	EnableTelemetry bool          `env:"ENABLE_TELEMETRY"`
	Collector       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "walletsim:", err)
		os.Exit(1)
	}
}

func run() error {
	wallet.InitLocalEnvConfig()

	cfg := config{
		Addr:         ":8080",
		UserEmail:    "demo@smartpay.local",
		UserPassword: "demo",
		AccountID:    "acc-demo",
		Environment:  "development",
		LogLevel:     "info",
		Version:      "0.0.0",
	}

	if err := wallet.SetConfigFromEnvVars(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Secret == "" {
		return fmt.Errorf("WALLETSIM_SECRET is required")
	}

	logger, _, err := libZap.New(libZap.Config{
		Environment:     libZap.Environment(cfg.Environment),
		Level:           cfg.LogLevel,
		OTelLibraryName: serviceName,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	telemetry, err := opentelemetry.NewTelemetry(ctx, &opentelemetry.TelemetryConfig{
		LibraryName:               serviceName,
		ServiceName:               serviceName,
		ServiceVersion:            cfg.Version,
		DeploymentEnv:             cfg.Environment,
		CollectorExporterEndpoint: cfg.Collector,
		EnableTelemetry:           cfg.EnableTelemetry,
		Logger:                    logger,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	telemetry.ApplyGlobals()
	runtime.InitPanicMetrics(telemetry.MetricsFactory, logger)
	runtime.SetProductionMode(cfg.Environment == string(libZap.EnvironmentProduction))

	sim, err := walletsim.New(walletsim.Config{
		Secret: []byte(cfg.Secret),
		Users: []walletsim.User{{
			Email:     cfg.UserEmail,
			Password:  cfg.UserPassword,
			AccountID: cfg.AccountID,
		}},
		Merchants:   splitList(cfg.Merchants),
		Latency:     cfg.Latency,
		FailureRate: cfg.FailureRate,
		Logger:      logger,
		Tracer:      telemetry.Tracer(),
		Metrics:     telemetry.MetricsFactory,
	})
	if err != nil {
		return err
	}

	logger.Log(ctx, log.LevelInfo, "walletsim configured",
		log.String("addr", cfg.Addr),
		log.String("account_id", cfg.AccountID),
		log.Duration("latency", cfg.Latency),
	)

	return server.NewServerManager(telemetry, logger).
		WithHTTPServer(sim.App(), cfg.Addr).
		StartWithGracefulShutdownWithError()
}

func splitList(raw string) []string {
	var out []string

	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
