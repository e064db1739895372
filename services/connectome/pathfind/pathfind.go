// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathfind answers shortest-path queries over the served snapshot.
package pathfind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

var tracer = otel.Tracer("connectome.pathfind")

// NamespacePaths holds path results, keyed per dataset.
const NamespacePaths = "paths"

// NoPathMessage is reported when end is unreachable from start.
const NoPathMessage = "No path found"

var (
	// ErrPrecomputeUnavailable is returned when no snapshot is served.
	ErrPrecomputeUnavailable = errors.New("precompute data unavailable")

	// ErrInvalidDataset is returned for a dataset absent from the snapshot.
	ErrInvalidDataset = errors.New("invalid dataset")

	// ErrNodeNotFound is returned when start or end is not a node of the
	// selected graph.
	ErrNodeNotFound = errors.New("start or end node not found in the dataset")
)

// SnapshotSource supplies the served snapshot. *snapshot.Provider
// implements it.
type SnapshotSource interface {
	Snapshot() (*graph.Snapshot, error)
}

// Query selects a graph and two endpoints.
type Query struct {
	DatasetID string
	Start     string
	End       string

	// Weighted uses 1/count as edge cost.
	Weighted bool

	// IncludeElectrical searches the graph that contains gap junctions.
	IncludeElectrical bool

	// UseClass searches the class-level graph.
	UseClass bool
}

// Edge is one traversed edge with its stored count and type.
type Edge struct {
	Pre   string              `json:"pre"`
	Post  string              `json:"post"`
	Count int                 `json:"count"`
	Type  records.SynapseType `json:"type"`
}

// Path is one shortest path.
type Path struct {
	Path        []string `json:"path"`
	Edges       []Edge   `json:"edges"`
	TotalWeight int      `json:"total_weight"`
}

// Result is the answer to a Query.
type Result struct {
	DatasetID      string   `json:"dataset_id"`
	StartNeuron    string   `json:"start_neuron"`
	EndNeuron      string   `json:"end_neuron"`
	UseWeights     bool     `json:"use_weights"`
	UseGapJunction bool     `json:"use_gap_junction"`
	UseClass       bool     `json:"use_class"`
	Nodes          []string `json:"nodes"`
	Paths          []Path   `json:"paths"`

	// Message is set when no path exists.
	Message string `json:"message,omitempty"`

	// Truncated is set when more tied paths existed than were returned.
	Truncated bool `json:"truncated,omitempty"`
}

// Finder answers path queries.
//
// Thread Safety: safe for concurrent use.
type Finder struct {
	source   SnapshotSource
	memo     *cache.Memo
	maxPaths int
	logger   *slog.Logger
}

// NewFinder creates a Finder.
//
// Inputs:
//
//	source - The served snapshot.
//	memo - Result cache. Nil disables caching.
//	maxPaths - Limit on returned tied paths. 0 means unlimited.
//	logger - Defaults to slog.Default().
func NewFinder(source SnapshotSource, memo *cache.Memo, maxPaths int, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	if memo == nil {
		memo = cache.NewMemo(nil, logger)
	}
	return &Finder{
		source:   source,
		memo:     memo,
		maxPaths: maxPaths,
		logger:   logger.With(slog.String("component", "pathfind")),
	}
}

// Find returns all shortest paths for q.
//
// Description:
//
//	Checks snapshot availability first and touches no graph when it is
//	missing. Then resolves the dataset and graph variant, and serves the
//	result from the cache or runs the search. Unreachable end is a
//	successful result with no paths and Message set.
//
// Outputs:
//
//	*Result - Non-nil when error is nil.
//	error - ErrPrecomputeUnavailable, ErrInvalidDataset or ErrNodeNotFound
//	(wrapped), or ctx.Err().
func (f *Finder) Find(ctx context.Context, q Query) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pathfind.Find",
		trace.WithAttributes(
			attribute.String("pathfind.dataset", q.DatasetID),
			attribute.Bool("pathfind.weighted", q.Weighted),
			attribute.Bool("pathfind.electrical", q.IncludeElectrical),
			attribute.Bool("pathfind.class", q.UseClass),
		),
	)
	defer span.End()

	snap, err := f.source.Snapshot()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPrecomputeUnavailable, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ds, ok := snap.Dataset(q.DatasetID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrInvalidDataset, q.DatasetID)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	g := ds.Select(q.UseClass, q.IncludeElectrical)

	key := cache.DatasetKey(NamespacePaths, q.DatasetID,
		strconv.FormatInt(snap.CreatedAt().UnixNano(), 10),
		q.Start, q.End,
		strconv.FormatBool(q.Weighted),
		strconv.FormatBool(q.IncludeElectrical),
		strconv.FormatBool(q.UseClass),
		strconv.Itoa(f.maxPaths))

	res, hit, err := cache.GetOrCompute(ctx, f.memo, key, func(ctx context.Context) (*Result, error) {
		return f.search(ctx, g, q)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("pathfind.cache_hit", hit),
		attribute.Int("pathfind.paths", len(res.Paths)),
	)
	return res, nil
}

func (f *Finder) search(ctx context.Context, g *graph.Graph, q Query) (*Result, error) {
	found, err := g.AllShortestPaths(ctx, q.Start, q.End, graph.PathOptions{
		Weighted: q.Weighted,
		MaxPaths: f.maxPaths,
	})
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNodeNotFound, err)
		}
		return nil, err
	}

	res := &Result{
		DatasetID:      q.DatasetID,
		StartNeuron:    q.Start,
		EndNeuron:      q.End,
		UseWeights:     q.Weighted,
		UseGapJunction: q.IncludeElectrical,
		UseClass:       q.UseClass,
		Nodes:          []string{},
		Paths:          make([]Path, 0, len(found.Paths)),
		Truncated:      found.Truncated,
	}
	if len(found.Paths) == 0 {
		res.Message = NoPathMessage
		f.logger.Debug("no path",
			slog.String("dataset", q.DatasetID),
			slog.String("start", q.Start),
			slog.String("end", q.End))
		return res, nil
	}

	nodes := make(map[string]struct{})
	for _, p := range found.Paths {
		out := Path{
			Path:        p.Nodes,
			Edges:       make([]Edge, 0, len(p.Edges)),
			TotalWeight: p.TotalWeight,
		}
		// Nodes lists edge endpoints only: a zero-length path adds none.
		for _, e := range p.Edges {
			out.Edges = append(out.Edges, Edge{Pre: e.Pre, Post: e.Post, Count: e.Weight, Type: e.Type})
			nodes[e.Pre] = struct{}{}
			nodes[e.Post] = struct{}{}
		}
		res.Paths = append(res.Paths, out)
	}
	for n := range nodes {
		res.Nodes = append(res.Nodes, n)
	}
	sort.Strings(res.Nodes)
	return res, nil
}

// InvalidationPrefixes returns the cache prefixes to drop after the given
// datasets were rebuilt.
func InvalidationPrefixes(datasetIDs []string) []string {
	out := make([]string, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		out = append(out, cache.DatasetPrefix(NamespacePaths, id))
	}
	return out
}

var _ SnapshotSource = (*snapshot.Provider)(nil)
