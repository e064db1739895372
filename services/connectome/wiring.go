// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package connectome

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/config"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
	badgerstore "github.com/AleutianAI/AleutianConnectome/services/connectome/storage/badger"
)

// RecordSourceFromConfig returns the record source selected by cfg and a
// function releasing it.
//
// Description:
//
//	The json backend re-imports DataDir on every call, so a reload picks up
//	rewritten files. The neo4j backend connects on first use and reuses the
//	connection afterwards.
func RecordSourceFromConfig(cfg config.RecordsConfig, logger *slog.Logger) (RecordSource, func(context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Backend == "neo4j" {
		var (
			mu    sync.Mutex
			store *records.Neo4jStore
		)
		source := func(ctx context.Context) (records.Reader, error) {
			mu.Lock()
			defer mu.Unlock()
			if store == nil {
				s, err := records.OpenNeo4jStore(ctx, cfg.Neo4j.Store(), logger)
				if err != nil {
					return nil, err
				}
				store = s
			}
			return store, nil
		}
		closer := func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if store == nil {
				return nil
			}
			return store.Close(ctx)
		}
		return source, closer
	}

	importer := records.NewImporter(cfg.DataDir, records.WithImportLogger(logger))
	source := func(ctx context.Context) (records.Reader, error) {
		store, report, err := importer.Import(ctx)
		if err != nil {
			return nil, err
		}
		if report.Skipped > 0 {
			logger.Warn("import skipped records",
				slog.String("dir", cfg.DataDir),
				slog.Int("skipped", report.Skipped))
		}
		return store, nil
	}
	return source, func(context.Context) error { return nil }
}

// OpenCache opens the cache backend selected by cfg.
func OpenCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Backend {
	case "none":
		return cache.Noop{}, nil
	case "badger":
		bc := badgerstore.DefaultConfig()
		bc.Path = cfg.Path
		bc.Logger = logger
		c, err := cache.OpenBadgerCache(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger cache at %s: %w", cfg.Path, err)
		}
		return c, nil
	case "memory", "":
		return cache.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// SnapshotLoaderFromConfig returns the file loader when cfg selects a
// precomputed snapshot, or nil to build from records.
func SnapshotLoaderFromConfig(cfg config.SnapshotConfig) snapshot.Loader {
	if cfg.Source == "file" {
		return snapshot.FileLoader(cfg.Path)
	}
	return nil
}
