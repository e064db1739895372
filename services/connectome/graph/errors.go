// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and queries the per-dataset connectome graphs.
//
// Every dataset gets four directed weighted graphs: neuron level and class
// level, each with all synapse types and with chemical synapses only. Nodes
// are labels (neuron or class names); an edge carries a weight (synapse
// count) and the synapse type that produced that weight.
//
// # Merge Rule
//
// When a second record lands on an existing ordered node pair, the edge
// keeps the smaller weight. Weight and type are replaced together, and only
// when the new weight is strictly smaller.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddEdge calls)
//   - Read-only access after Freeze() is called
//
// Snapshot only ever holds frozen graphs and is safe for concurrent use.
//
// # Lifecycle
//
//  1. Builder.Build turns record lists into a Snapshot
//  2. EncodeSnapshot writes it for the precompute step
//  3. DecodeSnapshot restores it at serving time
//  4. AllShortestPaths answers path queries on a selected graph
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when a path query names a label that is not
	// a node of the selected graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidWeight is returned for non-positive edge weights.
	ErrInvalidWeight = errors.New("edge weight must be positive")

	// ErrDuplicateDataset is returned when a build input lists a dataset twice.
	ErrDuplicateDataset = errors.New("duplicate dataset")

	// ErrBuildCancelled is returned when a build operation is cancelled via context.
	ErrBuildCancelled = errors.New("build cancelled")

	// ErrSnapshotCorrupt is returned when serialized snapshot data cannot be
	// decoded or fails its checksum.
	ErrSnapshotCorrupt = errors.New("snapshot data corrupt")

	// ErrUnsupportedFormat is returned for snapshot format versions this
	// build cannot read.
	ErrUnsupportedFormat = errors.New("unsupported snapshot format version")
)

// SynapseWarning reports a synapse record skipped during a build.
type SynapseWarning struct {
	DatasetID string
	Pre       string
	Post      string
	Reason    error
}

// Error implements the error interface.
func (w SynapseWarning) Error() string {
	return fmt.Sprintf("dataset %s: skipped %s -> %s: %v", w.DatasetID, w.Pre, w.Post, w.Reason)
}

// Unwrap returns the reason for errors.Is/As support.
func (w SynapseWarning) Unwrap() error {
	return w.Reason
}
