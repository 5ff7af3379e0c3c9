// Package main starts the worker process.
//
// Boot sequence (fixed order, each step fatal on failure):
//  1. load configuration (environment, optionally seeded by a YAML file)
//  2. resolve the local home directory (for the authorized_keys file)
//  3. gather local machine info (hostname, OS, CPU/RAM/disk) and register
//     with the coordinator, retrying with exponential backoff
//  4. bootstrap SSH: fetch the coordinator's public key, append it to
//     authorized_keys, and start an ssh-agent for outbound cooperative runs
//  5. start the HTTP server and block until SIGINT/SIGTERM
//
// Registration is step 3, before SSH bootstrap, so a worker becomes visible
// to the coordinator as early as possible in the boot window — a worker
// that spent its startup budget on SSH setup first would sit invisible to
// the coordinator (and undispatchable) for no good reason, since SSH key
// material is only needed later, when this node is chosen as a
// cooperative-job initiator.
//
// Configuration is entirely environment/YAML driven (see internal/config);
// unlike the coordinator there are no CLI flag overrides, since a worker
// fleet is rolled out with one shared config file or environment template.
//
// Exit codes:
//   - 0: clean shutdown on SIGINT/SIGTERM
//   - 1: fatal error during startup (bad config, registration exhausted,
//     SSH bootstrap failure)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hpcbench/fleet/internal/config"
	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/hpcbench/fleet/internal/worker"
)

const (
	// registerBackoffBase is the initial delay between registration
	// retries; RegisterWithBackoff doubles it on each subsequent attempt.
	registerBackoffBase = 400 * time.Millisecond
	// shutdownTimeout bounds how long the HTTP listeners are given to
	// drain in-flight requests before the process exits anyway.
	shutdownTimeout = 5 * time.Second
	// workRoot is the parent directory job working trees are created
	// under; /tmp keeps scratch I/O off the results filesystem.
	workRoot = "/tmp"
	// resultsRootRelative is where finished job artifacts are written,
	// relative to the worker's own working directory.
	resultsRootRelative = "../results"
	// sshBootstrapTimeout bounds the SSH key fetch + agent start; it runs
	// after registration, so a slow or failing SSH step no longer risks
	// delaying the worker's visibility to the coordinator.
	sshBootstrapTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the boot sequence described in the package doc comment and
// then serves until signaled. It returns a non-nil error for every fatal
// startup condition; main() is responsible for turning that into a
// nonzero exit code.
func run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	obslog.Init(obslog.Config{Level: obslog.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	log := obslog.WithComponent("worker")

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("worker: resolve home directory: %w", err)
	}

	coordinatorAddr := fmt.Sprintf("http://%s:%d", cfg.MasterIP, cfg.MasterPort)

	// Step 3: register before anything else that can fail or block, so
	// the coordinator can see and dispatch to this node as soon as
	// possible in the boot window.
	info := worker.GatherLocalInfo(resultsRootRelative)
	registerReq := wire.RegisterRequest{
		Port:      cfg.APIPort,
		Hostname:  info.Hostname,
		OS:        info.OS,
		CPUCount:  info.CPUCount,
		RAMTotal:  info.RAMTotal,
		RAMAvail:  info.RAMAvail,
		DiskTotal: info.DiskTotal,
	}
	if err := worker.RegisterWithBackoff(context.Background(), coordinatorAddr, registerReq, cfg.MaxRetries, registerBackoffBase); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	// Step 4: SSH bootstrap runs after registration; it's only needed if
	// this node is later chosen as a cooperative-job initiator.
	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), sshBootstrapTimeout)
	defer cancelBootstrap()
	if err := worker.BootstrapSSH(bootstrapCtx, coordinatorAddr, home); err != nil {
		return fmt.Errorf("worker: ssh bootstrap: %w", err)
	}

	admission := worker.NewAdmission()
	table := worker.NewJobTable()
	supervisor := worker.NewSupervisor(admission, table, workRoot, resultsRootRelative)

	srv := &worker.Server{Supervisor: supervisor, Table: table}
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// When METRICS_ADDR is set, a second listener serves /metrics on its
	// own address so a scraper can reach it without the main API port;
	// Server.Routes still registers /metrics on the main mux as well.
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", worker.MetricsHandler())
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
		log.Info().Str("addr", addr).Str("coordinator", coordinatorAddr).Msg("worker listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("worker: listen: %w", err)
	case <-stop:
	}

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
	log.Info().Msg("worker stopped")
	return nil
}
