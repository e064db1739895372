// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("connectome.aggregate")
	meter  = otel.Meter("connectome.aggregate")
)

var (
	aggregateLatency metric.Float64Histogram
	aggregateTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		aggregateLatency, err = meter.Float64Histogram(
			"connectome_aggregate_duration_seconds",
			metric.WithDescription("Duration of edge aggregation requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		aggregateTotal, err = meter.Int64Counter(
			"connectome_aggregate_total",
			metric.WithDescription("Total edge aggregation requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAggregate(ctx context.Context, duration time.Duration, success, cacheHit bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Bool("cache_hit", cacheHit),
	)
	aggregateLatency.Record(ctx, duration.Seconds(), attrs)
	aggregateTotal.Add(ctx, 1, attrs)
}
