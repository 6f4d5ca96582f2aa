package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tokenlock/config"
	"tokenlock/observability/logging"
	telemetry "tokenlock/observability/otel"
)

const serviceName = "lockd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if strings.TrimSpace(*genesisFlag) != "" {
		cfg.GenesisFile = *genesisFlag
	}

	env := strings.TrimSpace(os.Getenv("TOKENLOCK_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, cfg.Logging.LogFile())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("lockd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.OTel(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	n, err := newNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	if n.forwarder != nil {
		go n.forwarder.Run(ctx)
		logger.Info("Outbox forwarder started", slog.String("endpoint", cfg.Outbox.WebhookURL))
	}

	servers := []*http.Server{{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(n.rpc.Router(), "lockd.rpc"),
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info("HTTP listener started", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown failed", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}
	return runErr
}
