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
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/aggregate"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/events"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStore fills neurons A, B (class X) and C (class Y) with
// D1: A->C chemical 4, B->C chemical 6, A-C electrical 2 and D2: A->C chemical 1.
func newStore(t *testing.T) *records.MemoryStore {
	t.Helper()
	store := records.NewMemoryStore()
	store.AddNeuron(records.Neuron{Name: "A", Class: "X"})
	store.AddNeuron(records.Neuron{Name: "B", Class: "X"})
	store.AddNeuron(records.Neuron{Name: "C", Class: "Y"})
	store.AddDataset(records.Dataset{ID: "D1", Name: "Adult", Type: "complete", AnimalVisualTime: 50})
	store.AddDataset(records.Dataset{ID: "D2", Name: "L1", Type: "complete", AnimalVisualTime: 1})
	for _, s := range []records.Synapse{
		{Dataset: "D1", Pre: "A", Post: "C", Type: records.Chemical, Count: 4},
		{Dataset: "D1", Pre: "B", Post: "C", Type: records.Chemical, Count: 6},
		{Dataset: "D1", Pre: "A", Post: "C", Type: records.Electrical, Count: 2},
		{Dataset: "D2", Pre: "A", Post: "C", Type: records.Chemical, Count: 1},
	} {
		require.NoError(t, store.AddSynapse(s))
	}
	return store
}

func storeSource(store records.Reader) RecordSource {
	return func(context.Context) (records.Reader, error) { return store, nil }
}

func newTestService(t *testing.T, store *records.MemoryStore, cfg ServiceConfig) *Service {
	t.Helper()
	cfg.Logger = quietLogger()
	svc := NewService(storeSource(store), cache.NewMemo(cache.NewMemoryCache(), cfg.Logger), cfg)
	require.NoError(t, svc.Start(context.Background()))
	return svc
}

func TestService_NotStarted(t *testing.T) {
	svc := NewService(storeSource(newStore(t)), nil, ServiceConfig{Logger: quietLogger()})
	ctx := context.Background()

	_, err := svc.Datasets()
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = svc.AvailableNeurons([]string{"D1"})
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = svc.Aggregate(ctx, aggregate.Request{Datasets: []string{"D1"}})
	assert.ErrorIs(t, err, aggregate.ErrNoCatalog)

	_, err = svc.FindPaths(ctx, pathfind.Query{DatasetID: "D1", Start: "A", End: "C"})
	assert.ErrorIs(t, err, pathfind.ErrPrecomputeUnavailable)

	assert.False(t, svc.Status().Ready)
}

func TestService_StartFailsWithoutRecords(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(func(context.Context) (records.Reader, error) { return nil, boom },
		nil, ServiceConfig{Logger: quietLogger()})

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestService_StartBuildsSnapshot(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})

	status := svc.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, snapshot.StateReady, status.Snapshot.State)
	assert.Equal(t, "records", status.Snapshot.Source)
	assert.Equal(t, 2, status.Snapshot.Datasets)
	require.NotNil(t, status.LastBuild)
	assert.Equal(t, 2, status.LastBuild.Datasets)
	assert.Equal(t, 4, status.LastBuild.SynapsesProcessed)
}

func TestService_SnapshotLoaderFailureKeepsRecords(t *testing.T) {
	loader := func(context.Context) (*graph.Snapshot, string, error) {
		return nil, "", errors.New("no snapshot file")
	}
	svc := newTestService(t, newStore(t), ServiceConfig{SnapshotLoader: loader})

	assert.False(t, svc.Status().Ready)
	assert.Equal(t, snapshot.StateUnavailable, svc.Status().Snapshot.State)

	_, err := svc.FindPaths(context.Background(), pathfind.Query{DatasetID: "D1", Start: "A", End: "C"})
	assert.ErrorIs(t, err, pathfind.ErrPrecomputeUnavailable)

	resp, err := svc.Aggregate(context.Background(), aggregate.Request{
		Datasets: []string{"D1"},
		Neurons:  []string{"A"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Synapses)
}

func TestService_Datasets(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})

	got, err := svc.Datasets()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, DatasetInfo{
		DatasetID:        "D1",
		Name:             "Adult",
		DatasetType:      "complete",
		AnimalVisualTime: 50,
	}, got[0])
	assert.Equal(t, "D2", got[1].DatasetID)
}

func TestService_AvailableNeurons(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})

	_, err := svc.AvailableNeurons(nil)
	assert.ErrorIs(t, err, aggregate.ErrNoDatasets)

	_, err = svc.AvailableNeurons([]string{"D9"})
	assert.ErrorIs(t, err, records.ErrDatasetNotFound)

	avail, err := svc.AvailableNeurons([]string{"D2"})
	require.NoError(t, err)
	assert.Len(t, avail.Neurons, 2)
	assert.Contains(t, avail.Neurons, "A")
	assert.Contains(t, avail.Neurons, "C")
	assert.Equal(t, []string{"A", "B"}, avail.NeuronClasses["X"])
	assert.Equal(t, []string{"C"}, avail.NeuronClasses["Y"])
}

func TestService_FindPaths(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})

	res, err := svc.FindPaths(context.Background(), pathfind.Query{
		DatasetID: "D1", Start: "A", End: "C", Weighted: true, IncludeElectrical: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Paths)
	assert.Equal(t, []string{"A", "C"}, res.Paths[0].Path)

	res, err = svc.FindPaths(context.Background(), pathfind.Query{
		DatasetID: "D1", Start: "C", End: "B", Weighted: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
	assert.Equal(t, pathfind.NoPathMessage, res.Message)
}

func TestService_ReloadInvalidatesDataset(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store, ServiceConfig{SubResults: true})
	ctx := context.Background()
	req := aggregate.Request{
		Datasets:             []string{"D2"},
		Neurons:              []string{"A", "C"},
		ShowIndividualNeuron: true,
		ShowConnectedNeuron:  true,
	}

	first, err := svc.Aggregate(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Synapses, 1)
	assert.Equal(t, 1, first.Synapses[0].Count)

	require.NoError(t, store.AddSynapse(records.Synapse{
		Dataset: "D2", Pre: "A", Post: "C", Type: records.Chemical, Count: 2,
	}))

	stale, err := svc.Aggregate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Synapses[0].Count)

	result, err := svc.Reload(ctx, []string{"D2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"D2"}, result.Datasets)
	assert.Positive(t, result.Invalidated)
	assert.Equal(t, uint64(2), result.Snapshot.Generation)

	fresh, err := svc.Aggregate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Synapses[0].Count)
	assert.Equal(t, []int{3}, fresh.Synapses[0].ListCount)
}

func TestService_ReloadKeepsSnapshotOnFailure(t *testing.T) {
	var fail atomic.Bool
	var svc *Service
	loader := func(ctx context.Context) (*graph.Snapshot, string, error) {
		if fail.Load() {
			return nil, "", errors.New("build failed")
		}
		return svc.buildFromRecords(ctx)
	}
	svc = NewService(storeSource(newStore(t)), nil, ServiceConfig{
		SnapshotLoader: loader,
		Logger:         quietLogger(),
	})
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.Status().Ready)

	fail.Store(true)
	result, err := svc.Reload(context.Background(), nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, snapshot.StateReady, result.Snapshot.State)
	assert.Equal(t, "build failed", result.Snapshot.LastError)

	_, err = svc.FindPaths(context.Background(), pathfind.Query{DatasetID: "D1", Start: "A", End: "C"})
	assert.NoError(t, err)
}

func TestService_HandleReimport(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})
	before := svc.Status().Snapshot.Generation

	err := svc.HandleReimport(context.Background(), events.ReimportEvent{
		DatasetIDs: []string{"D1"},
		Source:     "test",
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, svc.Status().Snapshot.Generation)
}

func TestService_WarmCache(t *testing.T) {
	svc := newTestService(t, newStore(t), ServiceConfig{})
	ctx := context.Background()

	result, err := svc.WarmCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Datasets)
	assert.Equal(t, 3, result.Neurons)
	assert.Equal(t, 2, result.Classes)
	assert.Positive(t, result.Synapses)

	misses := svc.Memo().Stats().Misses
	_, err = svc.Aggregate(ctx, aggregate.Request{
		Datasets:             []string{"D1", "D2"},
		Neurons:              []string{"A", "B", "C"},
		ShowIndividualNeuron: true,
		ShowConnectedNeuron:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, misses, svc.Memo().Stats().Misses)
}

func TestInvalidationPrefixes(t *testing.T) {
	all := invalidationPrefixes(nil)
	assert.Equal(t, []string{
		cache.NamespacePrefix(aggregate.NamespaceEdges),
		cache.NamespacePrefix(aggregate.NamespaceSub),
		cache.NamespacePrefix(pathfind.NamespacePaths),
	}, all)

	scoped := invalidationPrefixes([]string{"D1"})
	assert.Contains(t, scoped, cache.DatasetPrefix(pathfind.NamespacePaths, "D1"))
	assert.Contains(t, scoped, cache.DatasetPrefix(aggregate.NamespaceSub, "D1"))
}
