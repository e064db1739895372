// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command connectome starts the connectome graph API server.
//
// The server answers edge aggregation and shortest-path queries over
// per-dataset synapse graphs. Graphs are built from the record store at
// startup or loaded from a precomputed snapshot file.
//
// Usage:
//
//	go run ./cmd/connectome
//	go run ./cmd/connectome -config connectome.yaml
//
// Configuration is read from the YAML file named by -config or
// CONNECTOME_CONFIG, then overridden by CONNECTOME_* variables.
//
// Example requests:
//
//	# Readiness
//	curl http://localhost:8080/v1/connectome/ready
//
//	# Aggregate edges between two classes over two datasets
//	curl -X POST http://localhost:8080/v1/connectome/edges \
//	  -H "Content-Type: application/json" \
//	  -d '{"datasets": ["witvliet_2020_7", "witvliet_2020_8"], "classes": ["AVA", "RME"], "show_connected_neuron": true}'
//
//	# All shortest paths
//	curl 'http://localhost:8080/v1/connectome/paths?dataset=witvliet_2020_8&start=AVAL&end=RMED'
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
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianConnectome/pkg/logging"
	"github.com/AleutianAI/AleutianConnectome/services/connectome"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/config"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/events"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	debug := flag.Bool("debug", false, "Enable gin debug mode")
	flag.Parse()

	if err := run(*configPath, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "connectome: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg, err := cfg.Logging.Logger("connectome")
	if err != nil {
		return err
	}
	logger := logging.New(logCfg)
	defer logger.Close()
	log := logger.Slog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	backend, err := connectome.OpenCache(cfg.Cache, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	source, closeRecords := connectome.RecordSourceFromConfig(cfg.Records, log)
	defer func() {
		if err := closeRecords(context.Background()); err != nil {
			log.Warn("Record store close failed", slog.String("error", err.Error()))
		}
	}()

	svc := connectome.NewService(source, cache.NewMemo(backend, log), connectome.ServiceConfig{
		Workers:        cfg.Server.Workers,
		MaxPaths:       cfg.Server.MaxPaths,
		SubResults:     cfg.Cache.SubResults,
		SnapshotLoader: connectome.SnapshotLoaderFromConfig(cfg.Snapshot),
		Logger:         log,
	})
	if err := svc.Start(ctx); err != nil {
		return err
	}

	if cfg.Snapshot.Source == "file" && cfg.Snapshot.Watch {
		watcher, err := snapshot.NewWatcher(cfg.Snapshot.Path, svc.Provider(), cfg.Snapshot.Debounce, log)
		if err != nil {
			return fmt.Errorf("watch snapshot: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watch snapshot: %w", err)
		}
		defer watcher.Stop()
	}

	if cfg.Events.URL != "" {
		nc, err := events.Connect(cfg.Events.URL, "connectome", log)
		if err != nil {
			return err
		}
		defer nc.Drain()
		sub, err := events.Subscribe(nc, cfg.Events.Subject, cfg.Events.HandlerTimeout, svc.HandleReimport, log)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		log.Info("Listening for reimport events", slog.String("subject", cfg.Events.Subject))
	}

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := connectome.RouterConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		Logger:         log,
	}
	if cfg.Telemetry.MetricExporter == "prometheus" {
		routerCfg.Metrics = telemetry.MetricsHandler()
	}
	router := connectome.NewRouter(connectome.NewHandlers(svc), routerCfg)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting connectome server", slog.String("address", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down connectome server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
