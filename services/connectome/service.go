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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/aggregate"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/events"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

// ServiceVersion is the connectome service version.
const ServiceVersion = "0.1.0"

// RecordSource opens the record store. It is called at start and on every
// reload, so a JSON import picks up rewritten files.
type RecordSource func(ctx context.Context) (records.Reader, error)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Workers bounds parallel dataset builds and reads. Default: 4.
	Workers int

	// MaxPaths caps the tied shortest paths returned. 0 means unlimited.
	MaxPaths int

	// SubResults memoizes per-(dataset, neuron or class) synapse reads.
	SubResults bool

	// SnapshotLoader replaces building the snapshot from records, e.g.
	// with snapshot.FileLoader.
	SnapshotLoader snapshot.Loader

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service owns the record store, the served snapshot and the result cache,
// and answers the connectome queries.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads are serialized; queries never wait for
// them and see either the old or the new data, never a mix.
type Service struct {
	source     RecordSource
	memo       *cache.Memo
	provider   *snapshot.Provider
	aggregator *aggregate.Aggregator
	finder     *pathfind.Finder
	workers    int
	logger     *slog.Logger

	reloadMu  sync.Mutex
	reader    atomic.Pointer[readerBox]
	lastBuild atomic.Pointer[graph.BuildStats]
}

// readerBox holds the current reader and its catalog.
type readerBox struct {
	reader  records.Reader
	catalog *records.Catalog
}

// NewService wires a Service. Nothing is loaded until Start.
//
// Inputs:
//
//	source - Opens the record store.
//	memo - Result cache. Nil disables caching.
//	cfg - Options.
func NewService(source RecordSource, memo *cache.Memo, cfg ServiceConfig) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if memo == nil {
		memo = cache.NewMemo(nil, cfg.Logger)
	}

	s := &Service{
		source:  source,
		memo:    memo,
		workers: cfg.Workers,
		logger:  cfg.Logger.With(slog.String("component", "service")),
	}
	loader := cfg.SnapshotLoader
	if loader == nil {
		loader = s.buildFromRecords
	}
	s.provider = snapshot.NewProvider(loader, cfg.Logger)
	s.aggregator = aggregate.New(nil, nil, memo, aggregate.Config{
		Workers:    cfg.Workers,
		SubResults: cfg.SubResults,
		Logger:     cfg.Logger,
	})
	s.finder = pathfind.NewFinder(s.provider, memo, cfg.MaxPaths, cfg.Logger)
	return s
}

// Start opens the record store and loads the snapshot.
//
// Description:
//
//	A record store failure is returned. A snapshot failure is only logged:
//	the provider becomes unavailable and path queries fail individually
//	until a reload succeeds.
func (s *Service) Start(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if err := s.openRecords(ctx); err != nil {
		return err
	}
	if err := s.provider.Reload(ctx); err != nil {
		s.logger.Error("snapshot not loaded, path queries unavailable", slog.String("error", err.Error()))
	}
	return nil
}

func (s *Service) openRecords(ctx context.Context) error {
	reader, err := s.source(ctx)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	catalog, err := records.LoadCatalog(ctx, reader)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	s.reader.Store(&readerBox{reader: reader, catalog: catalog})
	s.aggregator.Install(reader, catalog)
	s.logger.Info("records loaded",
		slog.Int("datasets", len(catalog.DatasetIDs())),
		slog.Int("neurons", catalog.NeuronCount()))
	return nil
}

// buildFromRecords is the default snapshot loader.
func (s *Service) buildFromRecords(ctx context.Context) (*graph.Snapshot, string, error) {
	box := s.reader.Load()
	if box == nil {
		return nil, "", ErrNotStarted
	}
	result, err := BuildSnapshot(ctx, box.reader, box.catalog, s.workers, s.logger)
	if err != nil {
		return nil, "", err
	}
	stats := result.Stats
	s.lastBuild.Store(&stats)
	return result.Snapshot, "records", nil
}

// BuildSnapshot reads every dataset from reader and builds its graphs.
//
// Outputs:
//
//	*graph.BuildResult - Snapshot, skipped-record warnings and statistics.
//	error - Read or build failure.
func BuildSnapshot(ctx context.Context, reader records.Reader, catalog *records.Catalog, workers int, logger *slog.Logger) (*graph.BuildResult, error) {
	all, err := records.ReadAll(ctx, reader)
	if err != nil {
		return nil, err
	}
	result, err := graph.NewBuilder(catalog,
		graph.WithWorkerCount(workers),
		graph.WithLogger(logger),
	).Build(ctx, all)
	if err != nil {
		return nil, err
	}
	logger.Info("graphs built",
		slog.Int("datasets", result.Stats.Datasets),
		slog.Int("edges", result.Stats.Edges),
		slog.Int("skipped_synapses", result.Stats.SkippedSynapses))
	return result, nil
}

// Provider returns the snapshot provider, e.g. for a file watcher.
func (s *Service) Provider() *snapshot.Provider {
	return s.provider
}

// Memo returns the result cache.
func (s *Service) Memo() *cache.Memo {
	return s.memo
}

func (s *Service) catalog() (*records.Catalog, error) {
	box := s.reader.Load()
	if box == nil {
		return nil, ErrNotStarted
	}
	return box.catalog, nil
}

// Aggregate answers an edge aggregation request.
func (s *Service) Aggregate(ctx context.Context, req aggregate.Request) (*aggregate.Response, error) {
	return s.aggregator.Aggregate(ctx, req)
}

// FindPaths answers a shortest-path query.
func (s *Service) FindPaths(ctx context.Context, q pathfind.Query) (*pathfind.Result, error) {
	return s.finder.Find(ctx, q)
}

// Datasets lists all datasets ordered by id.
func (s *Service) Datasets() ([]DatasetInfo, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	out := make([]DatasetInfo, 0, len(cat.DatasetIDs()))
	for _, ds := range cat.Datasets() {
		out = append(out, DatasetInfo{
			DatasetID:        ds.ID,
			Name:             ds.Name,
			DatasetType:      ds.Type,
			Description:      ds.Description,
			AnimalVisualTime: ds.AnimalVisualTime,
			Citation:         ds.Citation,
		})
	}
	return out, nil
}

// AvailableNeurons returns the neurons and classes present in any of the
// given datasets.
//
// Outputs:
//
//	error - ErrNoDatasets when ids is empty, records.ErrDatasetNotFound
//	(wrapped) for an unknown id, or ErrNotStarted.
func (s *Service) AvailableNeurons(ids []string) (*records.Availability, error) {
	if len(ids) == 0 {
		return nil, aggregate.ErrNoDatasets
	}
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	return cat.Available(ids)
}

// Reload reopens the record store, swaps in a new snapshot and drops the
// cache entries of the given datasets. No ids means every dataset.
//
// Description:
//
//	The snapshot is swapped atomically. If it fails to load, the previous
//	snapshot keeps serving and the failure is returned after the cache
//	has still been invalidated, since the records did change.
func (s *Service) Reload(ctx context.Context, datasetIDs []string) (*ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	began := time.Now()

	if err := s.openRecords(ctx); err != nil {
		return nil, err
	}
	snapErr := s.provider.Reload(ctx)

	prefixes := invalidationPrefixes(datasetIDs)
	invErr := s.memo.Invalidate(ctx, prefixes...)
	if invErr != nil {
		s.logger.Warn("cache invalidation incomplete", slog.String("error", invErr.Error()))
	}

	result := &ReloadResult{
		Datasets:    datasetIDs,
		Invalidated: len(prefixes),
		Snapshot:    s.provider.Status(),
		DurationMS:  time.Since(began).Milliseconds(),
	}
	if stats := s.lastBuild.Load(); stats != nil {
		result.SkippedSynapses = stats.SkippedSynapses
	}
	s.logger.Info("reload complete",
		slog.Any("datasets", datasetIDs),
		slog.Int("prefixes", len(prefixes)),
		slog.Int64("duration_ms", result.DurationMS))

	if err := errors.Join(snapErr, invErr); err != nil {
		return result, err
	}
	return result, nil
}

// HandleReimport is the events.Handler for reimport notifications.
func (s *Service) HandleReimport(ctx context.Context, ev events.ReimportEvent) error {
	s.logger.Info("reimport event received",
		slog.Any("datasets", ev.DatasetIDs),
		slog.String("source", ev.Source))
	_, err := s.Reload(ctx, ev.DatasetIDs)
	return err
}

func invalidationPrefixes(datasetIDs []string) []string {
	if len(datasetIDs) == 0 {
		return []string{
			cache.NamespacePrefix(aggregate.NamespaceEdges),
			cache.NamespacePrefix(aggregate.NamespaceSub),
			cache.NamespacePrefix(pathfind.NamespacePaths),
		}
	}
	out := aggregate.InvalidationPrefixes(datasetIDs)
	return append(out, pathfind.InvalidationPrefixes(datasetIDs)...)
}

// WarmCache precomputes the aggregations the explorer opens with.
//
// Description:
//
//	Over all datasets in id order, aggregates every available neuron
//	individually and every available class, the two concurrently. The
//	aggregator reads datasets in parallel and fills the per-dataset
//	sub-results on the way.
func (s *Service) WarmCache(ctx context.Context) (*WarmResult, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	began := time.Now()
	ids := append([]string(nil), cat.DatasetIDs()...)
	sort.Strings(ids)
	if len(ids) == 0 {
		return &WarmResult{}, nil
	}

	avail, err := cat.Available(ids)
	if err != nil {
		return nil, err
	}
	neurons := make([]string, 0, len(avail.Neurons))
	for name := range avail.Neurons {
		neurons = append(neurons, name)
	}
	sort.Strings(neurons)
	classes := make([]string, 0, len(avail.NeuronClasses))
	for name := range avail.NeuronClasses {
		classes = append(classes, name)
	}
	sort.Strings(classes)

	requests := []aggregate.Request{
		{Datasets: ids, Neurons: neurons, ShowIndividualNeuron: true, ShowConnectedNeuron: true},
		{Datasets: ids, Classes: classes, ShowIndividualNeuron: true, ShowConnectedNeuron: true},
	}
	counts := make([]int, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		g.Go(func() error {
			resp, err := s.aggregator.Aggregate(gctx, req)
			if err != nil {
				return fmt.Errorf("warm aggregate: %w", err)
			}
			counts[i] = len(resp.Synapses)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &WarmResult{Datasets: len(ids), Neurons: len(neurons), Classes: len(classes)}
	for _, n := range counts {
		result.Synapses += n
	}
	result.DurationMS = time.Since(began).Milliseconds()
	s.logger.Info("cache warmed",
		slog.Int("datasets", result.Datasets),
		slog.Int("neurons", result.Neurons),
		slog.Int("classes", result.Classes),
		slog.Int64("duration_ms", result.DurationMS))
	return result, nil
}

// Status reports readiness.
func (s *Service) Status() ReadyResponse {
	st := s.provider.Status()
	resp := ReadyResponse{
		Ready:    st.State == snapshot.StateReady && s.reader.Load() != nil,
		Snapshot: st,
		Cache:    s.memo.Stats(),
	}
	if stats := s.lastBuild.Load(); stats != nil {
		resp.LastBuild = stats
	}
	return resp
}
