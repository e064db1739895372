// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package connectome serves the connectome explorer API: dataset listing,
// available neurons, edge aggregation and shortest paths.
//
// # Components
//
//   - records: neurons, classes, datasets and synapses (JSON or Neo4j)
//   - graph: per-dataset graph variants and all-shortest-path search
//   - snapshot: the served, atomically swappable graph snapshot
//   - aggregate: label resolution and edge aggregation
//   - pathfind: path queries over the snapshot
//   - cache: result cache (memory or badger)
//   - events: reimport notifications over NATS
//
// Service ties them together; Handlers exposes it over gin.
package connectome

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianConnectome/pkg/validation"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/aggregate"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

// ErrNotStarted is returned before Start has loaded the records.
var ErrNotStarted = errors.New("connectome service not started")

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidDataset        = "INVALID_DATASET"
	CodeNodeNotFound          = "NODE_NOT_FOUND"
	CodePrecomputeUnavailable = "PRECOMPUTE_UNAVAILABLE"
	CodeNotReady              = "NOT_READY"
	CodeRateLimited           = "RATE_LIMITED"
	CodeTimeout               = "TIMEOUT"
	CodeInternal              = "INTERNAL_ERROR"
)

// classifyError maps an error to an HTTP status and error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, aggregate.ErrNoDatasets),
		errors.Is(err, aggregate.ErrDuplicateDataset),
		errors.Is(err, validation.ErrInvalidIdentifier):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, aggregate.ErrUnknownDataset),
		errors.Is(err, records.ErrDatasetNotFound),
		errors.Is(err, pathfind.ErrInvalidDataset):
		return http.StatusBadRequest, CodeInvalidDataset
	case errors.Is(err, pathfind.ErrNodeNotFound):
		return http.StatusBadRequest, CodeNodeNotFound
	case errors.Is(err, pathfind.ErrPrecomputeUnavailable):
		return http.StatusServiceUnavailable, CodePrecomputeUnavailable
	case errors.Is(err, ErrNotStarted),
		errors.Is(err, aggregate.ErrNoCatalog):
		return http.StatusServiceUnavailable, CodeNotReady
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
