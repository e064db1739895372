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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("connectome.graph")
	meter  = otel.Meter("connectome.graph")
)

// Metrics for graph building and path search.
var (
	buildLatency    metric.Float64Histogram
	buildTotal      metric.Int64Counter
	edgesCreated    metric.Int64Histogram
	skippedSynapses metric.Int64Counter
	pathLatency     metric.Float64Histogram
	pathsFound      metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"connectome_graph_build_duration_seconds",
			metric.WithDescription("Duration of snapshot builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"connectome_graph_build_total",
			metric.WithDescription("Total number of snapshot builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"connectome_graph_edges_created",
			metric.WithDescription("Edges over all variants per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		skippedSynapses, err = meter.Int64Counter(
			"connectome_graph_skipped_synapses_total",
			metric.WithDescription("Synapse records skipped during builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pathLatency, err = meter.Float64Histogram(
			"connectome_graph_path_duration_seconds",
			metric.WithDescription("Duration of all-shortest-path searches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pathsFound, err = meter.Int64Histogram(
			"connectome_graph_paths_found",
			metric.WithDescription("Shortest paths returned per search"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, duration time.Duration, edgeCount, skipped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		edgesCreated.Record(ctx, int64(edgeCount))
		skippedSynapses.Add(ctx, int64(skipped))
	}
}

func recordPathMetrics(ctx context.Context, duration time.Duration, weighted bool, pathCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("weighted", weighted))
	pathLatency.Record(ctx, duration.Seconds(), attrs)
	pathsFound.Record(ctx, int64(pathCount), attrs)
}

func startBuildSpan(ctx context.Context, datasetCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Builder.Build",
		trace.WithAttributes(
			attribute.Int("graph.dataset_count", datasetCount),
		),
	)
}

func setBuildSpanResult(span trace.Span, datasetCount, edgeCount, skipped int) {
	span.SetAttributes(
		attribute.Int("graph.dataset_count", datasetCount),
		attribute.Int("graph.edge_count", edgeCount),
		attribute.Int("graph.skipped_synapses", skipped),
	)
}
