// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate answers "which connections exist among these neurons
// and classes across these datasets" for subgraph rendering.
//
// Each endpoint of a matching synapse is resolved to a display label, either
// the neuron name or its class name, and counts are summed per
// (pre label, post label, type) with a per-dataset breakdown. Electrical
// synapses are symmetric and share one bucket per unordered label pair.
//
// Raw synapses are read per (dataset, neuron or class) through
// records.Reader and optionally memoized in the result cache.
package aggregate

import "errors"

var (
	// ErrNoDatasets is returned when a request names no dataset.
	ErrNoDatasets = errors.New("at least one dataset is required")

	// ErrUnknownDataset is returned when a requested dataset does not exist.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrDuplicateDataset is returned when a dataset is listed twice.
	ErrDuplicateDataset = errors.New("dataset listed more than once")

	// ErrNoCatalog is returned before a catalog has been installed.
	ErrNoCatalog = errors.New("neuron catalog not loaded")
)
