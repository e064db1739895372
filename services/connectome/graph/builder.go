// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// Datasets is the number of datasets built.
	Datasets int `json:"datasets"`

	// SynapsesProcessed is the number of synapse records merged into graphs.
	SynapsesProcessed int `json:"synapses_processed"`

	// SkippedSynapses is the number of records skipped with a warning.
	SkippedSynapses int `json:"skipped_synapses"`

	// Edges is the total edge count over all four variants of all datasets.
	Edges int `json:"edges"`

	// DurationMicro is the total build time in microseconds.
	DurationMicro int64 `json:"duration_us"`
}

// BuildResult contains the result of a graph build operation.
//
// Individual bad records do not fail the build. They are skipped and listed
// in Warnings.
type BuildResult struct {
	// Snapshot holds the frozen graphs of every input dataset.
	Snapshot *Snapshot

	// Warnings lists skipped records in dataset input order.
	Warnings []SynapseWarning

	// Stats contains build statistics.
	Stats BuildStats
}

// HasWarnings returns true if any record was skipped.
func (r *BuildResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// WorkerCount bounds how many datasets are built concurrently.
	// Default: runtime.NumCPU()
	WorkerCount int

	// Logger receives one warning line per skipped record.
	// Default: slog.Default()
	Logger *slog.Logger
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithWorkerCount sets the number of datasets built in parallel.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithLogger sets the build logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// Builder converts synapse records into per-dataset graph variants.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build() call operates
//	independently with its own internal state.
type Builder struct {
	catalog *records.Catalog
	options BuilderOptions
}

// NewBuilder creates a Builder that resolves neuron classes through catalog.
func NewBuilder(catalog *records.Catalog, opts ...BuilderOption) *Builder {
	options := BuilderOptions{
		WorkerCount: runtime.NumCPU(),
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{catalog: catalog, options: options}
}

// Build constructs the graph snapshot from the given record lists.
//
// Description:
//
//	Datasets are built in parallel, bounded by WorkerCount. Within a
//	dataset records are merged in input order using the min-weight rule,
//	which makes the result independent of scheduling. A record whose pre
//	or post neuron is unknown to the catalog is skipped with a warning.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked between datasets.
//	datasets - One entry per dataset. Ids must be unique.
//
// Outputs:
//
//	*BuildResult - The snapshot, warnings and statistics.
//	error - ErrDuplicateDataset, or ErrBuildCancelled wrapping ctx.Err().
func (b *Builder) Build(ctx context.Context, datasets []records.DatasetRecords) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, len(datasets))
	defer span.End()
	start := time.Now()

	seen := make(map[string]struct{}, len(datasets))
	for _, ds := range datasets {
		if _, dup := seen[ds.DatasetID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDataset, ds.DatasetID)
		}
		seen[ds.DatasetID] = struct{}{}
	}

	type partial struct {
		graphs    *DatasetGraphs
		warnings  []SynapseWarning
		processed int
	}
	parts := make([]partial, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)
	for i, ds := range datasets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			graphs, warnings, processed := b.BuildDataset(ds.DatasetID, ds.Synapses)
			parts[i] = partial{graphs: graphs, warnings: warnings, processed: processed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordBuildMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: %v", ErrBuildCancelled, err)
	}

	result := &BuildResult{}
	byID := make(map[string]*DatasetGraphs, len(datasets))
	for i, ds := range datasets {
		p := parts[i]
		byID[ds.DatasetID] = p.graphs
		result.Warnings = append(result.Warnings, p.warnings...)
		result.Stats.SynapsesProcessed += p.processed
		result.Stats.Edges += p.graphs.NeuronAll.EdgeCount() + p.graphs.NeuronChemical.EdgeCount() +
			p.graphs.ClassAll.EdgeCount() + p.graphs.ClassChemical.EdgeCount()
	}
	for _, w := range result.Warnings {
		b.options.Logger.Warn("skipped synapse",
			slog.String("dataset_id", w.DatasetID),
			slog.String("pre", w.Pre),
			slog.String("post", w.Post),
			slog.String("reason", w.Reason.Error()))
	}

	result.Snapshot = NewSnapshot(byID, time.Now())
	result.Stats.Datasets = len(datasets)
	result.Stats.SkippedSynapses = len(result.Warnings)
	duration := time.Since(start)
	result.Stats.DurationMicro = duration.Microseconds()

	setBuildSpanResult(span, result.Stats.Datasets, result.Stats.Edges, result.Stats.SkippedSynapses)
	recordBuildMetrics(ctx, duration, result.Stats.Edges, result.Stats.SkippedSynapses, true)
	return result, nil
}

// BuildDataset builds and freezes the four graphs of one dataset.
//
// Outputs:
//
//	*DatasetGraphs - Never nil. Edgeless graphs for an empty record list.
//	[]SynapseWarning - Skipped records in input order.
//	int - Number of records merged.
func (b *Builder) BuildDataset(datasetID string, synapses []records.Synapse) (*DatasetGraphs, []SynapseWarning, int) {
	dg := NewDatasetGraphs()
	var warnings []SynapseWarning
	processed := 0

	skip := func(s records.Synapse, reason error) {
		warnings = append(warnings, SynapseWarning{DatasetID: datasetID, Pre: s.Pre, Post: s.Post, Reason: reason})
	}

	for _, s := range synapses {
		pre, ok := b.catalog.Neuron(s.Pre)
		if !ok {
			skip(s, fmt.Errorf("%w: %s", records.ErrUnknownNeuron, s.Pre))
			continue
		}
		post, ok := b.catalog.Neuron(s.Post)
		if !ok {
			skip(s, fmt.Errorf("%w: %s", records.ErrUnknownNeuron, s.Post))
			continue
		}
		if !s.Type.Valid() {
			skip(s, fmt.Errorf("%w: %q", records.ErrUnknownSynapseType, s.Type))
			continue
		}
		if s.Count <= 0 {
			skip(s, fmt.Errorf("%w: %d", records.ErrInvalidCount, s.Count))
			continue
		}

		// Weight is validated above, so AddEdge cannot fail on an unfrozen graph.
		_, _ = dg.NeuronAll.AddEdge(pre.Name, post.Name, s.Count, s.Type)
		_, _ = dg.ClassAll.AddEdge(pre.Class, post.Class, s.Count, s.Type)
		if s.Type == records.Chemical {
			_, _ = dg.NeuronChemical.AddEdge(pre.Name, post.Name, s.Count, s.Type)
			_, _ = dg.ClassChemical.AddEdge(pre.Class, post.Class, s.Count, s.Type)
		}
		processed++
	}

	dg.Freeze()
	return dg, warnings, processed
}
