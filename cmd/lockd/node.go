package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tokenlock/config"
	"tokenlock/core/genesis"
	"tokenlock/core/processor"
	"tokenlock/integrations/outbox"
	"tokenlock/integrations/webhooks"
	"tokenlock/observability/metrics"
	"tokenlock/rpc"
	"tokenlock/storage"
)

// node bundles the long-lived components of a running lockd.
type node struct {
	db        storage.Database
	outbox    *outbox.Store
	processor *processor.Processor
	rpc       *rpc.Server
	forwarder *webhooks.Forwarder
}

// newNode opens storage, replays genesis when configured and assembles the
// RPC server and optional outbox forwarder.
func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	procCfg, err := cfg.ProcessorConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve processor config: %w", err)
	}

	db, err := storage.Open(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBBackend, err)
	}
	n := &node{db: db}

	opts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithMetrics(metrics.Lock()),
	}
	if cfg.Outbox.Enabled {
		store, err := outbox.Open(cfg.Outbox.DSN)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("open outbox: %w", err)
		}
		n.outbox = store
		opts = append(opts, processor.WithOutbox(store))
	}

	n.processor, err = processor.New(db, procCfg, opts...)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("init processor: %w", err)
	}

	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		applied, err := genesis.Apply(ctx, n.processor, spec, procCfg.Admin)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("Genesis checked", slog.String("path", path), slog.Bool("applied", applied))
	}

	serverOpts := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithRateLimiter(rpc.NewRateLimiter(rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})),
	}
	if secret := cfg.Auth.JWTSecret(); secret != "" {
		auth, err := rpc.NewAuthenticator(rpc.AuthConfig{
			HMACSecret: secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		})
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("init authenticator: %w", err)
		}
		serverOpts = append(serverOpts, rpc.WithAuthenticator(auth))
	} else {
		logger.Warn("No JWT secret configured; signed RPC methods are disabled",
			slog.String("env", cfg.Auth.HMACSecretEnv))
	}
	if n.outbox != nil {
		serverOpts = append(serverOpts, rpc.WithOutbox(n.outbox))
	}
	n.rpc, err = rpc.NewServer(n.processor, serverOpts...)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("init rpc server: %w", err)
	}

	if n.outbox != nil && strings.TrimSpace(cfg.Outbox.WebhookURL) != "" {
		n.forwarder, err = webhooks.NewForwarder(cfg.Outbox.WebhookURL, []byte(cfg.Outbox.Secret()), n.outbox,
			webhooks.WithHTTPClient(&http.Client{
				Timeout:   15 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}),
			webhooks.WithInterval(cfg.Outbox.PollInterval()),
			webhooks.WithBatchSize(cfg.Outbox.BatchSize),
			webhooks.WithLogger(logger),
			webhooks.WithMetrics(metrics.Lock()),
		)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("init forwarder: %w", err)
		}
	}
	return n, nil
}

// Close releases the outbox and the state database.
func (n *node) Close() {
	if n.outbox != nil {
		_ = n.outbox.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
