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
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

// Edge is a directed weighted connection between two labels.
type Edge struct {
	Pre    string              `json:"pre"`
	Post   string              `json:"post"`
	Weight int                 `json:"weight"`
	Type   records.SynapseType `json:"type"`
}

// Graph is a directed weighted graph keyed by node label.
//
// There is at most one edge per ordered (pre, post) pair. Nodes exist only
// as edge endpoints.
type Graph struct {
	edges  map[string]map[string]Edge
	nodes  map[string]struct{}
	frozen bool

	// Populated by Freeze.
	succ      map[string][]Edge
	nodeList  []string
	edgeCount int
}

// NewGraph creates an empty, unfrozen graph.
func NewGraph() *Graph {
	return &Graph{
		edges: make(map[string]map[string]Edge),
		nodes: make(map[string]struct{}),
	}
}

// AddEdge inserts pre→post or merges into the existing edge.
//
// Description:
//
//	If no edge pre→post exists it is created with weight and typ. Otherwise
//	weight and typ replace the stored values only when weight is strictly
//	smaller than the stored weight.
//
// Outputs:
//
//	bool - True if the edge was created or replaced.
//	error - ErrGraphFrozen after Freeze, ErrInvalidWeight for weight <= 0.
func (g *Graph) AddEdge(pre, post string, weight int, typ records.SynapseType) (bool, error) {
	if g.frozen {
		return false, ErrGraphFrozen
	}
	if weight <= 0 {
		return false, fmt.Errorf("%w: %s -> %s weight %d", ErrInvalidWeight, pre, post, weight)
	}

	out, ok := g.edges[pre]
	if !ok {
		out = make(map[string]Edge)
		g.edges[pre] = out
	}
	if existing, ok := out[post]; ok && weight >= existing.Weight {
		return false, nil
	}
	out[post] = Edge{Pre: pre, Post: post, Weight: weight, Type: typ}
	g.nodes[pre] = struct{}{}
	g.nodes[post] = struct{}{}
	return true, nil
}

// Freeze makes the graph read-only and builds the sorted adjacency lists.
// Calling Freeze more than once is a no-op.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	g.succ = make(map[string][]Edge, len(g.edges))
	for pre, out := range g.edges {
		list := make([]Edge, 0, len(out))
		for _, e := range out {
			list = append(list, e)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Post < list[j].Post })
		g.succ[pre] = list
		g.edgeCount += len(list)
	}
	g.nodeList = make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		g.nodeList = append(g.nodeList, n)
	}
	sort.Strings(g.nodeList)
	g.frozen = true
}

// IsFrozen reports whether Freeze has been called.
func (g *Graph) IsFrozen() bool {
	return g.frozen
}

// HasNode reports whether label is an endpoint of any edge.
func (g *Graph) HasNode(label string) bool {
	_, ok := g.nodes[label]
	return ok
}

// Edge returns the edge pre→post.
func (g *Graph) Edge(pre, post string) (Edge, bool) {
	e, ok := g.edges[pre][post]
	return e, ok
}

// Successors returns the outgoing edges of label ordered by post label.
// The graph must be frozen.
func (g *Graph) Successors(label string) []Edge {
	return g.succ[label]
}

// Nodes returns all node labels, sorted. The graph must be frozen.
func (g *Graph) Nodes() []string {
	return g.nodeList
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	if g.frozen {
		return g.edgeCount
	}
	n := 0
	for _, out := range g.edges {
		n += len(out)
	}
	return n
}

// Edges returns every edge ordered by (pre, post). The graph must be frozen.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edgeCount)
	for _, pre := range g.nodeList {
		out = append(out, g.succ[pre]...)
	}
	return out
}
