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
	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable reason.
	Code string `json:"code,omitempty"`
}

// HealthResponse is returned by the liveness check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by the readiness check.
type ReadyResponse struct {
	Ready     bool              `json:"ready"`
	Snapshot  snapshot.Status   `json:"snapshot"`
	Cache     cache.Stats       `json:"cache"`
	LastBuild *graph.BuildStats `json:"last_build,omitempty"`
}

// DatasetInfo is one dataset in the dataset listing.
type DatasetInfo struct {
	DatasetID        string  `json:"dataset_id"`
	Name             string  `json:"name"`
	DatasetType      string  `json:"dataset_type"`
	Description      string  `json:"description"`
	AnimalVisualTime float64 `json:"animal_visual_time"`
	Citation         string  `json:"citation,omitempty"`
}

// ReloadRequest is the body of the admin reload endpoint.
type ReloadRequest struct {
	// DatasetIDs limits cache invalidation. Empty means all datasets.
	DatasetIDs []string `json:"dataset_ids"`
}

// ReloadResult summarizes a reload.
type ReloadResult struct {
	Datasets        []string        `json:"dataset_ids"`
	Invalidated     int             `json:"invalidated_prefixes"`
	SkippedSynapses int             `json:"skipped_synapses"`
	Snapshot        snapshot.Status `json:"snapshot"`
	DurationMS      int64           `json:"duration_ms"`
}

// WarmResult summarizes a cache warm-up.
type WarmResult struct {
	Datasets   int   `json:"datasets"`
	Neurons    int   `json:"neurons"`
	Classes    int   `json:"classes"`
	Synapses   int   `json:"synapses"`
	DurationMS int64 `json:"duration_ms"`
}
