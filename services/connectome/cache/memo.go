// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultFlightTimeout bounds one collapsed computation.
const DefaultFlightTimeout = 2 * time.Minute

// Stats contains cache usage counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Errors      int64 `json:"errors"`
	Invalidated int64 `json:"invalidations"`
}

// Memo wraps a Cache with JSON encoding, miss collapsing and error
// fallback.
//
// # Description
//
// Concurrent misses on the same key run the computation once. Every caller
// receives its own decoded copy of the value, so a cold call and a warm call
// return identical results. Cache failures are logged and counted but never
// returned; the computation result is returned instead.
//
// A computation is detached from the cancellation of the caller that
// started it and bounded by the flight timeout instead. A caller whose
// context ends stops waiting with ctx.Err(); the other callers still get
// the value.
//
// # Thread Safety
//
// Safe for concurrent use.
type Memo struct {
	cache         Cache
	logger        *slog.Logger
	group         singleflight.Group
	flightTimeout time.Duration

	hits        atomic.Int64
	misses      atomic.Int64
	errors      atomic.Int64
	invalidated atomic.Int64
}

// MemoOption configures a Memo.
type MemoOption func(*Memo)

// WithFlightTimeout bounds each computation. Zero or negative means no
// bound beyond the computation's own.
func WithFlightTimeout(d time.Duration) MemoOption {
	return func(m *Memo) {
		m.flightTimeout = d
	}
}

// NewMemo creates a Memo over c. A nil c behaves like Noop.
func NewMemo(c Cache, logger *slog.Logger, opts ...MemoOption) *Memo {
	if c == nil {
		c = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Memo{cache: c, logger: logger, flightTimeout: DefaultFlightTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the underlying cache.
func (m *Memo) Cache() Cache {
	return m.cache
}

// Stats returns a snapshot of the counters.
func (m *Memo) Stats() Stats {
	return Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Errors:      m.errors.Load(),
		Invalidated: m.invalidated.Load(),
	}
}

// Invalidate drops every key with one of the given prefixes.
//
// All prefixes are attempted. The first failure is returned.
func (m *Memo) Invalidate(ctx context.Context, prefixes ...string) error {
	var first error
	for _, p := range prefixes {
		if err := m.cache.Invalidate(ctx, p); err != nil {
			m.errors.Add(1)
			m.logger.Warn("cache invalidation failed", slog.String("prefix", p), slog.String("error", err.Error()))
			if first == nil {
				first = err
			}
			continue
		}
		m.invalidated.Add(1)
	}
	return first
}

// GetOrCompute returns the cached value for key or computes and stores it.
//
// Outputs:
//
//	T - The value.
//	bool - True on a cache hit.
//	error - Errors from compute, or ctx.Err() when ctx ends first.
func GetOrCompute[T any](ctx context.Context, m *Memo, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	ns := namespaceOf(key)

	if data, found, err := m.cache.Get(ctx, key); err != nil {
		m.errors.Add(1)
		recordError(ctx, ns, "get")
		m.logger.Warn("cache get failed, computing", slog.String("key", key), slog.String("error", err.Error()))
	} else if found {
		var v T
		err := json.Unmarshal(data, &v)
		if err == nil {
			m.hits.Add(1)
			recordLookup(ctx, ns, true)
			return v, true, nil
		}
		m.errors.Add(1)
		recordError(ctx, ns, "decode")
		m.logger.Warn("cached value undecodable, computing", slog.String("key", key), slog.String("error", err.Error()))
	}

	m.misses.Add(1)
	recordLookup(ctx, ns, false)

	flight := m.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if m.flightTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, m.flightTimeout)
			defer cancel()
		}
		v, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Set(fctx, key, encoded); err != nil {
			m.errors.Add(1)
			recordError(ctx, ns, "set")
			m.logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return encoded, nil
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
	if res.Err != nil {
		return zero, false, res.Err
	}

	var v T
	if err := json.Unmarshal(res.Val.([]byte), &v); err != nil {
		return zero, false, err
	}
	return v, false, nil
}
