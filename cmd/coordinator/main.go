// Package main starts the coordinator process: the node registry, the two
// dispatch disciplines, SSH key distribution, and the HTTP surface
// cmd/benchctl and every worker talk to.
//
// Configuration:
//   - COORDINATOR_CONFIG_FILE: optional YAML file seeding defaults
//   - LOG_LEVEL, LOG_JSON, METRICS_ADDR: ambient logging/metrics knobs
//   - --host, --port: override the listen address; win over both the
//     environment and the config file
//
// Exit codes:
//   - 0: clean shutdown on SIGINT/SIGTERM
//   - 1: fatal error during startup
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hpcbench/fleet/internal/config"
	"github.com/hpcbench/fleet/internal/coordinator"
	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/sshkeys"
)

const (
	reloadInterval    = 30 * time.Second
	reloadPingTimeout = 4 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCoordinator()
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	host := flag.String("host", cfg.Host, "listen host")
	port := flag.Int("port", cfg.Port, "listen port")
	resultsDir := flag.String("results-dir", "./results", "root directory for session result trees")
	flag.Parse()

	obslog.Init(obslog.Config{Level: obslog.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	log := obslog.WithComponent("coordinator")

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("coordinator: resolve home directory: %w", err)
	}

	keys, err := sshkeys.Generate("hpcbench-coordinator")
	if err != nil {
		return fmt.Errorf("coordinator: generate ssh key pair: %w", err)
	}
	authorizedKeys := filepath.Join(home, ".ssh", "authorized_keys")
	if err := sshkeys.AppendAuthorizedKey(authorizedKeys, keys.PublicKeyLine); err != nil {
		return fmt.Errorf("coordinator: seed own authorized_keys: %w", err)
	}

	registry := coordinator.NewRegistry()
	dispatcher := coordinator.NewDispatcher(registry, *resultsDir)

	srv := &coordinator.Server{Registry: registry, Dispatcher: dispatcher, Keys: keys}
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	reloadCtx, cancelReload := context.WithCancel(context.Background())
	defer cancelReload()
	go runReloadLoop(reloadCtx, registry, reloadInterval, reloadPingTimeout)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", coordinator.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening separately")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("coordinator listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("coordinator: listen: %w", err)
	case <-stop:
	}

	cancelReload()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("metrics listener shutdown failed")
		}
	}
	log.Info().Msg("coordinator stopped")
	return nil
}

// runReloadLoop periodically prunes nodes that no longer answer /ping, so
// the registry doesn't keep dispatching to a worker that crashed without
// deregistering.
func runReloadLoop(ctx context.Context, registry *coordinator.Registry, interval, pingTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Reload(ctx, pingTimeout)
		}
	}
}
