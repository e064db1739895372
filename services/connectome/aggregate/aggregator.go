// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

// Cache namespaces used by the aggregator.
const (
	// NamespaceEdges holds full aggregate responses. Keys span datasets, so
	// the whole namespace is dropped on reimport.
	NamespaceEdges = "edges"

	// NamespaceSub holds raw synapses per (dataset, neuron or class).
	NamespaceSub = "sub"
)

// Config configures an Aggregator.
type Config struct {
	// Workers bounds concurrent per-dataset reads. Default 4.
	Workers int

	// SubResults memoizes raw synapses per (dataset, neuron or class).
	SubResults bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Aggregator answers aggregate requests.
//
// # Thread Safety
//
// Safe for concurrent use. Install may be called while requests run;
// each request uses the reader and catalog it started with.
type Aggregator struct {
	src        atomic.Pointer[source]
	generation atomic.Uint64
	memo       *cache.Memo
	workers    int
	subResults bool
	logger     *slog.Logger
}

// source pairs a reader with the catalog loaded from it. generation is
// part of every cache key computed from this source, so a result read from
// a replaced source never lands under a live key.
type source struct {
	reader     records.Reader
	catalog    *records.Catalog
	generation string
}

// New creates an Aggregator reading raw synapses from reader.
//
// Inputs:
//
//	reader - Source of raw synapses.
//	catalog - Neuron and dataset lookup. When nil, requests fail with
//	ErrNoCatalog until Install is called.
//	memo - Result cache. Nil disables caching.
//	cfg - Options.
func New(reader records.Reader, catalog *records.Catalog, memo *cache.Memo, cfg Config) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if memo == nil {
		memo = cache.NewMemo(nil, cfg.Logger)
	}
	a := &Aggregator{
		memo:       memo,
		workers:    cfg.Workers,
		subResults: cfg.SubResults,
		logger:     cfg.Logger.With(slog.String("component", "aggregate")),
	}
	if reader != nil && catalog != nil {
		a.Install(reader, catalog)
	}
	return a
}

// Install replaces the reader and catalog, typically after a reimport.
func (a *Aggregator) Install(reader records.Reader, catalog *records.Catalog) {
	gen := a.generation.Add(1)
	a.src.Store(&source{
		reader:     reader,
		catalog:    catalog,
		generation: strconv.FormatUint(gen, 10),
	})
}

// Generation returns the number of Install calls so far.
func (a *Aggregator) Generation() uint64 {
	return a.generation.Load()
}

// Catalog returns the installed catalog, or nil.
func (a *Aggregator) Catalog() *records.Catalog {
	if s := a.src.Load(); s != nil {
		return s.catalog
	}
	return nil
}

// Aggregate returns the aggregated edges among the requested neurons and
// classes.
//
// Description:
//
//	Validates the datasets, then serves the response from the cache or
//	computes it. A cache failure never fails the request. Unknown neuron
//	and class names are ignored.
//
// Inputs:
//
//	ctx - Cancels reads from the record store.
//	req - The selection. Datasets must be non-empty, known and distinct.
//
// Outputs:
//
//	*Response - Neurons are sorted, Synapses are ordered by (pre, post, type).
//	error - ErrNoDatasets, ErrUnknownDataset, ErrDuplicateDataset,
//	ErrNoCatalog, or a record store error.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "aggregate.Aggregate",
		trace.WithAttributes(
			attribute.Int("aggregate.datasets", len(req.Datasets)),
			attribute.Int("aggregate.neurons", len(req.Neurons)),
			attribute.Int("aggregate.classes", len(req.Classes)),
		),
	)
	defer span.End()
	began := time.Now()

	src := a.src.Load()
	if src == nil {
		span.SetStatus(codes.Error, ErrNoCatalog.Error())
		return nil, ErrNoCatalog
	}
	if err := validate(src.catalog, req.Datasets); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := cache.Key(NamespaceEdges, append([]string{src.generation}, req.cacheParts()...)...)
	resp, hit, err := cache.GetOrCompute(ctx, a.memo, key, func(ctx context.Context) (*Response, error) {
		return a.compute(ctx, src, req)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		recordAggregate(ctx, time.Since(began), false, hit)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("aggregate.cache_hit", hit),
		attribute.Int("aggregate.synapses", len(resp.Synapses)),
	)
	recordAggregate(ctx, time.Since(began), true, hit)
	return resp, nil
}

func validate(cat *records.Catalog, datasets []string) error {
	if len(datasets) == 0 {
		return ErrNoDatasets
	}
	seen := make(map[string]struct{}, len(datasets))
	for _, id := range datasets {
		if _, ok := cat.Dataset(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDataset, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// bucket accumulates one aggregated edge.
type bucket struct {
	count     int
	listCount []int
}

func (a *Aggregator) compute(ctx context.Context, src *source, req Request) (*Response, error) {
	cat := src.catalog
	l := newLabeler(cat, req)
	selectors := l.selectors()

	perDataset, err := a.readDatasets(ctx, src, req.Datasets, selectors)
	if err != nil {
		return nil, err
	}

	buckets := make(map[edgeKey]*bucket)
	nodes := make(map[string]struct{})
	for i, syns := range perDataset {
		for _, s := range syns {
			pre, ok := cat.Neuron(s.Pre)
			if !ok {
				continue
			}
			post, ok := cat.Neuron(s.Post)
			if !ok {
				continue
			}
			if req.ShowConnectedNeuron {
				if !l.member(pre) && !l.member(post) {
					continue
				}
			} else if !l.member(pre) || !l.member(post) {
				continue
			}

			preLabel, postLabel := l.label(pre), l.label(post)
			nodes[preLabel] = struct{}{}
			nodes[postLabel] = struct{}{}

			k := newEdgeKey(preLabel, postLabel, s.Type)
			b, ok := buckets[k]
			if !ok {
				b = &bucket{listCount: make([]int, len(req.Datasets))}
				buckets[k] = b
			}
			b.count += s.Count
			b.listCount[i] += s.Count
		}
	}

	if !req.ShowConnectedNeuron {
		for _, name := range l.requested() {
			nodes[name] = struct{}{}
		}
	}

	resp := &Response{
		Datasets: append([]string(nil), req.Datasets...),
		Neurons:  sortedSet(nodes),
		Synapses: make([]AggregatedSynapse, 0, len(buckets)),
	}
	for k, b := range buckets {
		resp.Synapses = append(resp.Synapses, AggregatedSynapse{
			Pre:       k.pre,
			Post:      k.post,
			Type:      k.typ,
			Count:     b.count,
			ListCount: b.listCount,
		})
	}
	sort.Slice(resp.Synapses, func(i, j int) bool {
		x, y := resp.Synapses[i], resp.Synapses[j]
		if x.Pre != y.Pre {
			return x.Pre < y.Pre
		}
		if x.Post != y.Post {
			return x.Post < y.Post
		}
		return x.Type < y.Type
	})

	a.logger.Debug("aggregated edges",
		slog.Int("datasets", len(req.Datasets)),
		slog.Int("selectors", len(selectors)),
		slog.Int("synapses", len(resp.Synapses)),
		slog.Int("nodes", len(resp.Neurons)))
	return resp, nil
}

// readDatasets returns, per dataset in request order, every raw synapse
// touching a selector, each raw (pre, post, type) at most once.
func (a *Aggregator) readDatasets(ctx context.Context, src *source, datasets []string, selectors []records.Selector) ([][]records.Synapse, error) {
	out := make([][]records.Synapse, len(datasets))
	if len(selectors) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, ds := range datasets {
		g.Go(func() error {
			syns, err := a.readDataset(gctx, src, ds, selectors)
			if err != nil {
				return err
			}
			out[i] = syns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Aggregator) readDataset(ctx context.Context, src *source, datasetID string, selectors []records.Selector) ([]records.Synapse, error) {
	seen := make(map[records.SynapseKey]struct{})
	var out []records.Synapse
	for _, sel := range selectors {
		syns, err := a.touching(ctx, src, datasetID, sel)
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", sel, datasetID, err)
		}
		for _, s := range syns {
			k := s.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}

// touching reads the raw synapses of one selector, through the sub-result
// cache when enabled.
func (a *Aggregator) touching(ctx context.Context, src *source, datasetID string, sel records.Selector) ([]records.Synapse, error) {
	if !a.subResults {
		return src.reader.SynapsesTouching(ctx, datasetID, sel)
	}
	key := cache.DatasetKey(NamespaceSub, datasetID, src.generation, string(sel.Kind), sel.Name)
	syns, _, err := cache.GetOrCompute(ctx, a.memo, key, func(ctx context.Context) ([]records.Synapse, error) {
		return src.reader.SynapsesTouching(ctx, datasetID, sel)
	})
	return syns, err
}

// InvalidationPrefixes returns the cache prefixes to drop after the given
// datasets were reimported.
func InvalidationPrefixes(datasetIDs []string) []string {
	out := make([]string, 0, len(datasetIDs)+1)
	out = append(out, cache.NamespacePrefix(NamespaceEdges))
	for _, id := range datasetIDs {
		out = append(out, cache.DatasetPrefix(NamespaceSub, id))
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
