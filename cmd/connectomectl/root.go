// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConnectome/pkg/logging"
	"github.com/AleutianAI/AleutianConnectome/pkg/ux"
	"github.com/AleutianAI/AleutianConnectome/services/connectome"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/config"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	jsonOutput bool
	verbose    bool
}

// env is the per-invocation state built from the global options.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	json   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "connectomectl",
		Short: "Import, precompute and query connectome datasets",
		Long: `connectomectl manages the data behind the connectome service.

It imports the JSON initial data, writes precomputed graph snapshots,
warms the result cache and runs edge and path queries offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	pf.StringVar(&opts.dataDir, "data-dir", "", "Override records.data_dir")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Print JSON (default when stdout is not a terminal)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newImportCmd(opts),
		newPrecomputeCmd(opts),
		newWarmCacheCmd(opts),
		newDatasetsCmd(opts),
		newEdgesCmd(opts),
		newPathCmd(opts),
		newReloadCmd(opts),
	)
	return root
}

// setup loads configuration and builds the logger for cmd.
func setup(cmd *cobra.Command, opts *globalOptions) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.Records.DataDir = opts.dataDir
	}

	logCfg, err := cfg.Logging.Logger("connectomectl")
	if err != nil {
		return nil, err
	}
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.Format = logging.FormatText
	if opts.verbose {
		logCfg.Level = logging.LevelDebug
	} else {
		logCfg.Level = logging.LevelWarn
	}
	logger := logging.New(logCfg).Slog()

	out := cmd.OutOrStdout()
	asJSON := opts.jsonOutput
	if f, ok := out.(*os.File); ok && !asJSON {
		asJSON = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &env{cfg: cfg, logger: logger, out: out, json: asJSON}, nil
}

// openService starts a service over the configured records and cache.
// The returned function releases the cache and the record store.
func (e *env) openService(ctx context.Context) (*connectome.Service, func(), error) {
	backend, err := connectome.OpenCache(e.cfg.Cache, e.logger)
	if err != nil {
		return nil, nil, err
	}
	source, closeRecords := connectome.RecordSourceFromConfig(e.cfg.Records, e.logger)
	release := func() {
		_ = closeRecords(context.Background())
		_ = backend.Close()
	}

	svc := connectome.NewService(source, cache.NewMemo(backend, e.logger), connectome.ServiceConfig{
		Workers:        e.cfg.Server.Workers,
		MaxPaths:       e.cfg.Server.MaxPaths,
		SubResults:     e.cfg.Cache.SubResults,
		SnapshotLoader: connectome.SnapshotLoaderFromConfig(e.cfg.Snapshot),
		Logger:         e.logger,
	})
	if err := svc.Start(ctx); err != nil {
		release()
		return nil, nil, err
	}
	return svc, release, nil
}

// print writes v as indented JSON, or renders text when JSON is off.
func (e *env) print(v any, text func(p *ux.Printer)) error {
	if e.json {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(ux.NewPrinter(e.out))
	return nil
}
