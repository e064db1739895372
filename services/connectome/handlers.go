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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianConnectome/pkg/validation"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/aggregate"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/telemetry"
)

// Handlers contains the HTTP handlers for the connectome API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	logger := slog.With("request_id", getOrCreateRequestID(c), "handler", handler)
	return telemetry.LoggerWithTrace(c.Request.Context(), logger)
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleHealth handles GET /v1/connectome/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/connectome/ready.
//
// Response:
//
//	200 OK: ReadyResponse with ready=true
//	503 Service Unavailable: ReadyResponse with ready=false
func (h *Handlers) HandleReady(c *gin.Context) {
	status := h.svc.Status()
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// HandleDatasets handles GET /v1/connectome/datasets.
func (h *Handlers) HandleDatasets(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDatasets")

	datasets, err := h.svc.Datasets()
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, datasets)
}

// HandleAvailableNeurons handles GET /v1/connectome/available-neurons.
//
// Query Parameters:
//
//	datasets: Comma-separated dataset ids (required)
//
// Response:
//
//	200 OK: records.Availability
//	400 Bad Request: missing or unknown datasets
func (h *Handlers) HandleAvailableNeurons(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAvailableNeurons")

	ids := splitList(c.Query("datasets"))
	if err := validation.ValidateIdentifiers(ids); err != nil {
		writeError(c, logger, err)
		return
	}
	avail, err := h.svc.AvailableNeurons(ids)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

// HandleEdges handles POST /v1/connectome/edges.
//
// Description:
//
//	Aggregates the connections among the requested neurons and classes.
//	The body is an aggregate.Request.
//
// Response:
//
//	200 OK: aggregate.Response
//	400 Bad Request: INVALID_REQUEST or INVALID_DATASET
//	503 Service Unavailable: NOT_READY
func (h *Handlers) HandleEdges(c *gin.Context) {
	logger := h.requestLogger(c, "HandleEdges")

	var req aggregate.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	for _, names := range [][]string{req.Datasets, req.Neurons, req.Classes} {
		if err := validation.ValidateIdentifiers(names); err != nil {
			writeError(c, logger, err)
			return
		}
	}

	resp, err := h.svc.Aggregate(c.Request.Context(), req)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Debug("Edges aggregated",
		"datasets", len(req.Datasets),
		"synapses", len(resp.Synapses))
	c.JSON(http.StatusOK, resp)
}

// HandlePaths handles GET /v1/connectome/paths.
//
// Query Parameters:
//
//	dataset: Dataset id (required)
//	start, end: Node labels (required)
//	weighted: Use 1/count as edge cost (default true)
//	gap_junction: Include electrical synapses (default true)
//	class: Search the class-level graph (default false)
//
// Response:
//
//	200 OK: pathfind.Result, with message "No path found" when unreachable
//	400 Bad Request: INVALID_REQUEST, INVALID_DATASET or NODE_NOT_FOUND
//	503 Service Unavailable: PRECOMPUTE_UNAVAILABLE
func (h *Handlers) HandlePaths(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePaths")

	q := pathfind.Query{
		DatasetID: c.Query("dataset"),
		Start:     c.Query("start"),
		End:       c.Query("end"),
	}
	var err error
	if q.Weighted, err = boolQuery(c, "weighted", true); err == nil {
		if q.IncludeElectrical, err = boolQuery(c, "gap_junction", true); err == nil {
			q.UseClass, err = boolQuery(c, "class", false)
		}
	}
	if err == nil && (q.DatasetID == "" || q.Start == "" || q.End == "") {
		err = errors.New("dataset, start and end are required")
	}
	if err == nil {
		err = validation.ValidateIdentifiers([]string{q.DatasetID, q.Start, q.End})
	}
	if err != nil {
		logger.Warn("Invalid query", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	res, err := h.svc.FindPaths(c.Request.Context(), q)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleReload handles POST /v1/connectome/admin/reload.
//
// The optional body is a ReloadRequest. Without dataset ids every cached
// result is dropped.
func (h *Handlers) HandleReload(c *gin.Context) {
	logger := h.requestLogger(c, "HandleReload")

	var req ReloadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	logger.Info("Reload requested", "datasets", req.DatasetIDs)
	result, err := h.svc.Reload(c.Request.Context(), req.DatasetIDs)
	if err != nil {
		if result == nil {
			writeError(c, logger, err)
			return
		}
		logger.Error("Reload finished with errors", "error", err)
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func boolQuery(c *gin.Context, name string, def bool) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
