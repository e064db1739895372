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
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// costTolerance is the relative tolerance under which two path costs tie.
// Reciprocal weights accumulate rounding error, so 1/5+1/5 and 2/5 must
// compare equal.
const costTolerance = 1e-9

// PathOptions configures AllShortestPaths.
type PathOptions struct {
	// Weighted uses 1/weight as edge cost. Otherwise every edge costs 1.
	Weighted bool

	// MaxPaths stops enumeration after this many paths. 0 means unlimited.
	MaxPaths int
}

// Path is one shortest path.
type Path struct {
	// Nodes is the label sequence from start to end.
	Nodes []string

	// Edges holds len(Nodes)-1 traversed edges with their stored weight and type.
	Edges []Edge

	// TotalWeight is the sum of the stored edge weights, not of the costs.
	TotalWeight int
}

// PathResult is the outcome of AllShortestPaths.
type PathResult struct {
	// Paths is empty when end is unreachable from start.
	Paths []Path

	// Cost is the minimum total traversal cost. Zero when Paths is empty.
	Cost float64

	// Truncated is true if MaxPaths cut enumeration short.
	Truncated bool
}

// AllShortestPaths returns every minimum-cost path from start to end.
//
// Description:
//
//	Runs Dijkstra from start, recording every predecessor that reaches a
//	node at its minimum cost, then enumerates paths depth-first from end
//	back to start. Predecessors are visited in the order they were
//	discovered, and successors are relaxed in label order, so the output
//	order is deterministic for a given graph. When start == end the single
//	path [start] is returned.
//
// Inputs:
//
//	ctx - Checked while searching and enumerating.
//	start, end - Node labels. Both must be nodes of g.
//	opts - Cost mode and path limit.
//
// Outputs:
//
//	*PathResult - Never nil on success.
//	error - ErrNodeNotFound (wrapped) if start or end is absent, or ctx.Err().
//
// Thread Safety:
//
//	Safe for concurrent use on a frozen graph.
func (g *Graph) AllShortestPaths(ctx context.Context, start, end string, opts PathOptions) (*PathResult, error) {
	ctx, span := tracer.Start(ctx, "graph.AllShortestPaths",
		trace.WithAttributes(
			attribute.String("graph.start", start),
			attribute.String("graph.end", end),
			attribute.Bool("graph.weighted", opts.Weighted),
		),
	)
	defer span.End()
	began := time.Now()

	for _, label := range []string{start, end} {
		if !g.HasNode(label) {
			err := fmt.Errorf("%w: %s", ErrNodeNotFound, label)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	dist, preds, err := g.dijkstra(ctx, start, end, opts.Weighted)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &PathResult{}
	if _, ok := dist[end]; !ok {
		recordPathMetrics(ctx, time.Since(began), opts.Weighted, 0)
		return result, nil
	}
	result.Cost = dist[end]

	paths, truncated, err := g.enumerate(ctx, start, end, preds, opts.MaxPaths)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Paths = paths
	result.Truncated = truncated

	span.SetAttributes(
		attribute.Int("graph.path_count", len(paths)),
		attribute.Bool("graph.truncated", truncated),
	)
	recordPathMetrics(ctx, time.Since(began), opts.Weighted, len(paths))
	return result, nil
}

func (g *Graph) dijkstra(ctx context.Context, start, end string, weighted bool) (map[string]float64, map[string][]string, error) {
	dist := map[string]float64{start: 0}
	preds := map[string][]string{}
	done := make(map[string]bool)

	pq := &costQueue{{label: start, cost: 0}}
	for steps := 0; pq.Len() > 0; steps++ {
		if steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		item := heap.Pop(pq).(costItem)
		if done[item.label] {
			continue
		}
		done[item.label] = true
		if item.label == end {
			break
		}

		for _, e := range g.succ[item.label] {
			if done[e.Post] {
				continue
			}
			next := item.cost + edgeCost(e, weighted)
			current, seen := dist[e.Post]
			switch {
			case !seen || (next < current && !costsTie(next, current)):
				dist[e.Post] = next
				preds[e.Post] = []string{item.label}
				heap.Push(pq, costItem{label: e.Post, cost: next})
			case costsTie(next, current):
				preds[e.Post] = append(preds[e.Post], item.label)
			}
		}
	}
	return dist, preds, nil
}

func (g *Graph) enumerate(ctx context.Context, start, end string, preds map[string][]string, limit int) ([]Path, bool, error) {
	var (
		paths     []Path
		truncated bool
		stack     = []string{end}
		walk      func(label string) error
	)

	walk = func(label string) error {
		if limit > 0 && len(paths) >= limit {
			truncated = true
			return nil
		}
		if label == start {
			paths = append(paths, g.pathFromReversed(stack))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, p := range preds[label] {
			stack = append(stack, p)
			if err := walk(p); err != nil {
				return err
			}
			stack = stack[:len(stack)-1]
		}
		return nil
	}

	if err := walk(end); err != nil {
		return nil, false, err
	}
	return paths, truncated, nil
}

func (g *Graph) pathFromReversed(reversed []string) Path {
	n := len(reversed)
	p := Path{Nodes: make([]string, n), Edges: make([]Edge, 0, n-1)}
	for i, label := range reversed {
		p.Nodes[n-1-i] = label
	}
	for i := 0; i+1 < n; i++ {
		e := g.edges[p.Nodes[i]][p.Nodes[i+1]]
		p.Edges = append(p.Edges, e)
		p.TotalWeight += e.Weight
	}
	return p
}

func edgeCost(e Edge, weighted bool) float64 {
	if weighted {
		return 1 / float64(e.Weight)
	}
	return 1
}

func costsTie(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= costTolerance*scale
}

type costItem struct {
	label string
	cost  float64
}

// costQueue is a min-heap on cost, ties broken by label.
type costQueue []costItem

func (q costQueue) Len() int { return len(q) }

func (q costQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].label < q[j].label
}

func (q costQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *costQueue) Push(x any) { *q = append(*q, x.(costItem)) }

func (q *costQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
