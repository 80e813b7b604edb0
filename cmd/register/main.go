// Package main provides the entry point for the storage controller registration job.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/narvanalabs/pageserver-registrar/internal/cplane"
	"github.com/narvanalabs/pageserver-registrar/internal/metrics"
	"github.com/narvanalabs/pageserver-registrar/internal/registrar"
	"github.com/narvanalabs/pageserver-registrar/internal/version"
	"github.com/narvanalabs/pageserver-registrar/pkg/config"
	"github.com/narvanalabs/pageserver-registrar/pkg/logger"
)

const pushTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration before anything touches the network
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithComponent("register").WithError(err).Error("failed to load configuration")
		return registrar.ExitFailure
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat == "json").WithComponent("register")
	log.Info("starting storage controller registration", "build", version.Build, "host", cfg.Host)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	client := cplane.NewClient(cfg.HTTPTimeout, log.Logger, cplane.WithObserver(m))
	reg := registrar.New(cfg, client, m, log.Logger)

	result, err := reg.Run(ctx)
	m.Finish(err == nil)
	pushMetrics(cfg, m, log)

	if err != nil {
		log.WithError(err).Error("storage controller registration failed")
		return registrar.ExitCode(err)
	}

	log.Info("storage controller registration complete",
		"version", result.Version,
		"global_node_id", result.GlobalNodeID.String(),
		"global_registered", result.GlobalRegistered,
		"local_node_id", result.LocalNodeID.String(),
		"local_registered", result.LocalRegistered,
	)
	return registrar.ExitOK
}

// pushMetrics is best effort; a Pushgateway outage never fails the job.
func pushMetrics(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := m.Push(ctx, cfg.PushgatewayURL, cfg.JobName, cfg.Host); err != nil {
		log.Warn("failed to push metrics", "error", err)
		return
	}
	log.Debug("metrics pushed", "url", cfg.PushgatewayURL, "job", cfg.JobName)
}
