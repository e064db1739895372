// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
)

// State is the provider lifecycle state.
type State string

const (
	// StateNotLoaded means no load has been attempted yet.
	StateNotLoaded State = "not_loaded"

	// StateReady means a snapshot is being served.
	StateReady State = "ready"

	// StateUnavailable means the load failed and nothing can be served.
	StateUnavailable State = "unavailable"
)

// Loader produces a fresh snapshot. source describes where it came from
// and is reported in Status.
type Loader func(ctx context.Context) (snap *graph.Snapshot, source string, err error)

// Status describes the provider for health endpoints.
type Status struct {
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	Datasets   int       `json:"datasets"`
	Source     string    `json:"source,omitempty"`
	LoadedAt   time.Time `json:"loaded_at,omitzero"`
	CreatedAt  time.Time `json:"created_at,omitzero"`

	// LastError is the most recent load failure, even while still serving
	// an older snapshot.
	LastError string `json:"last_error,omitempty"`
}

type current struct {
	snap     *graph.Snapshot
	state    State
	cause    error
	gen      uint64
	source   string
	loadedAt time.Time
}

// Provider hands out the current snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. Snapshot never blocks. Concurrent Reload calls
// are collapsed into one load.
type Provider struct {
	cur     atomic.Pointer[current]
	loader  Loader
	logger  *slog.Logger
	reloads singleflight.Group

	mu      sync.Mutex // serializes state transitions
	lastErr atomic.Pointer[string]
}

// NewProvider creates a provider in StateNotLoaded. loader may be nil when
// snapshots are only ever installed with Swap.
func NewProvider(loader Loader, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{loader: loader, logger: logger}
	p.cur.Store(&current{state: StateNotLoaded})
	return p
}

// Snapshot returns the snapshot currently served.
//
// Outputs:
//
//	*graph.Snapshot - Non-nil when error is nil.
//	error - ErrNotLoaded, or *UnavailableError (matches ErrUnavailable).
func (p *Provider) Snapshot() (*graph.Snapshot, error) {
	c := p.cur.Load()
	switch c.state {
	case StateReady:
		return c.snap, nil
	case StateUnavailable:
		return nil, &UnavailableError{Cause: c.cause}
	default:
		return nil, ErrNotLoaded
	}
}

// Ready reports whether a snapshot is being served.
func (p *Provider) Ready() bool {
	return p.cur.Load().state == StateReady
}

// Status returns the provider state.
func (p *Provider) Status() Status {
	c := p.cur.Load()
	st := Status{
		State:      c.state,
		Generation: c.gen,
		Source:     c.source,
		LoadedAt:   c.loadedAt,
	}
	if c.snap != nil {
		st.Datasets = c.snap.Len()
		st.CreatedAt = c.snap.CreatedAt()
	}
	if msg := p.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

// Swap installs snap as the served snapshot.
func (p *Provider) Swap(snap *graph.Snapshot, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.cur.Load()
	p.cur.Store(&current{
		snap:     snap,
		state:    StateReady,
		gen:      prev.gen + 1,
		source:   source,
		loadedAt: time.Now().UTC(),
	})
	p.lastErr.Store(nil)
	recordSwap(context.Background(), true)
	p.logger.Info("snapshot installed",
		slog.String("source", source),
		slog.Uint64("generation", prev.gen+1),
		slog.Int("datasets", snap.Len()))
}

// fail records a load failure. A provider already serving a snapshot keeps
// serving it; otherwise it becomes unavailable.
func (p *Provider) fail(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := cause.Error()
	p.lastErr.Store(&msg)
	recordSwap(context.Background(), false)

	prev := p.cur.Load()
	if prev.state == StateReady {
		p.logger.Warn("snapshot reload failed, keeping previous snapshot",
			slog.Uint64("generation", prev.gen),
			slog.String("error", msg))
		return
	}
	p.cur.Store(&current{state: StateUnavailable, cause: cause, gen: prev.gen})
	p.logger.Error("snapshot unavailable", slog.String("error", msg))
}

// Reload runs the loader and swaps in its result.
//
// Description:
//
//	Concurrent calls share a single load. On failure a provider that was
//	ready stays ready with the old snapshot and the error is reported in
//	Status.LastError; a provider that was not ready becomes unavailable.
//
// Outputs:
//
//	error - The load failure, or ErrNoLoader.
func (p *Provider) Reload(ctx context.Context) error {
	if p.loader == nil {
		return ErrNoLoader
	}
	_, err, _ := p.reloads.Do("reload", func() (any, error) {
		snap, source, err := p.loader(ctx)
		if err != nil {
			p.fail(err)
			return nil, err
		}
		p.Swap(snap, source)
		return nil, nil
	})
	return err
}
