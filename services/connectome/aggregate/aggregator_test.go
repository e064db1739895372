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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingReader counts SynapsesTouching calls.
type countingReader struct {
	records.Reader
	calls atomic.Int32
}

func (c *countingReader) SynapsesTouching(ctx context.Context, datasetID string, sel records.Selector) ([]records.Synapse, error) {
	c.calls.Add(1)
	return c.Reader.SynapsesTouching(ctx, datasetID, sel)
}

// newFixture builds neurons A, B (class X), C (class Y) and E (class Z),
// with D1: A->C chemical 4, B->C chemical 6 and D2: A->C chemical 1.
func newFixture(t *testing.T, extra ...records.Synapse) (*records.MemoryStore, *records.Catalog) {
	t.Helper()
	store := records.NewMemoryStore()
	store.AddNeuron(records.Neuron{Name: "A", Class: "X"})
	store.AddNeuron(records.Neuron{Name: "B", Class: "X"})
	store.AddNeuron(records.Neuron{Name: "C", Class: "Y"})
	store.AddNeuron(records.Neuron{Name: "E", Class: "Z"})
	store.AddDataset(records.Dataset{ID: "D1"})
	store.AddDataset(records.Dataset{ID: "D2"})

	syns := []records.Synapse{
		{Dataset: "D1", Pre: "A", Post: "C", Type: records.Chemical, Count: 4},
		{Dataset: "D1", Pre: "B", Post: "C", Type: records.Chemical, Count: 6},
		{Dataset: "D2", Pre: "A", Post: "C", Type: records.Chemical, Count: 1},
	}
	for _, s := range append(syns, extra...) {
		require.NoError(t, store.AddSynapse(s))
	}

	cat, err := records.LoadCatalog(context.Background(), store)
	require.NoError(t, err)
	return store, cat
}

func newAggregator(t *testing.T, extra ...records.Synapse) *Aggregator {
	t.Helper()
	store, cat := newFixture(t, extra...)
	return New(store, cat, nil, Config{Logger: quietLogger()})
}

func TestAggregate_ClassesCollapse(t *testing.T) {
	a := newAggregator(t)

	resp, err := a.Aggregate(context.Background(), Request{
		Datasets:            []string{"D1"},
		Classes:             []string{"X", "Y"},
		ShowConnectedNeuron: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"D1"}, resp.Datasets)
	assert.Equal(t, []string{"X", "Y"}, resp.Neurons)
	assert.Equal(t, []AggregatedSynapse{
		{Pre: "X", Post: "Y", Type: records.Chemical, Count: 10, ListCount: []int{10}},
	}, resp.Synapses)
}

func TestAggregate_ListCountFollowsDatasetOrder(t *testing.T) {
	a := newAggregator(t)

	resp, err := a.Aggregate(context.Background(), Request{
		Datasets:            []string{"D2", "D1"},
		Classes:             []string{"X", "Y"},
		ShowConnectedNeuron: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Synapses, 1)
	assert.Equal(t, 11, resp.Synapses[0].Count)
	assert.Equal(t, []int{1, 10}, resp.Synapses[0].ListCount)
}

func TestAggregate_LabelRules(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		synapses []AggregatedSynapse
		neurons  []string
	}{
		{
			name: "unrequested class collapses",
			req:  Request{Neurons: []string{"C"}, ShowConnectedNeuron: true},
			synapses: []AggregatedSynapse{
				{Pre: "X", Post: "C", Type: records.Chemical, Count: 10, ListCount: []int{10}},
			},
			neurons: []string{"C", "X"},
		},
		{
			name: "show individual",
			req:  Request{Neurons: []string{"C"}, ShowIndividualNeuron: true, ShowConnectedNeuron: true},
			synapses: []AggregatedSynapse{
				{Pre: "A", Post: "C", Type: records.Chemical, Count: 4, ListCount: []int{4}},
				{Pre: "B", Post: "C", Type: records.Chemical, Count: 6, ListCount: []int{6}},
			},
			neurons: []string{"A", "B", "C"},
		},
		{
			name: "requested member splits its class",
			req:  Request{Neurons: []string{"A", "C"}, ShowConnectedNeuron: true},
			synapses: []AggregatedSynapse{
				{Pre: "A", Post: "C", Type: records.Chemical, Count: 4, ListCount: []int{4}},
				{Pre: "B", Post: "C", Type: records.Chemical, Count: 6, ListCount: []int{6}},
			},
			neurons: []string{"A", "B", "C"},
		},
		{
			name: "own name beats requested class",
			req:  Request{Neurons: []string{"A"}, Classes: []string{"X", "Y"}, ShowConnectedNeuron: true},
			synapses: []AggregatedSynapse{
				{Pre: "A", Post: "Y", Type: records.Chemical, Count: 4, ListCount: []int{4}},
				{Pre: "X", Post: "Y", Type: records.Chemical, Count: 6, ListCount: []int{6}},
			},
			neurons: []string{"A", "X", "Y"},
		},
		{
			name:     "unconnected edges excluded",
			req:      Request{Neurons: []string{"A"}},
			synapses: []AggregatedSynapse{},
			neurons:  []string{"A"},
		},
	}

	a := newAggregator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Datasets = []string{"D1"}
			resp, err := a.Aggregate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.synapses, resp.Synapses)
			assert.Equal(t, tt.neurons, resp.Neurons)
		})
	}
}

func TestAggregate_ElectricalSingleBucket(t *testing.T) {
	a := newAggregator(t,
		records.Synapse{Dataset: "D1", Pre: "A", Post: "B", Type: records.Electrical, Count: 3},
		records.Synapse{Dataset: "D1", Pre: "B", Post: "A", Type: records.Electrical, Count: 2},
		records.Synapse{Dataset: "D1", Pre: "B", Post: "A", Type: records.Chemical, Count: 1},
	)

	resp, err := a.Aggregate(context.Background(), Request{
		Datasets: []string{"D1"},
		Neurons:  []string{"B", "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, []AggregatedSynapse{
		{Pre: "A", Post: "B", Type: records.Electrical, Count: 5, ListCount: []int{5}},
		{Pre: "B", Post: "A", Type: records.Chemical, Count: 1, ListCount: []int{1}},
	}, resp.Synapses)
}

func TestAggregate_RawPairCountedOncePerDataset(t *testing.T) {
	a := newAggregator(t)

	// A->C is reached through neuron A, class X and neuron C.
	resp, err := a.Aggregate(context.Background(), Request{
		Datasets:            []string{"D1", "D2"},
		Neurons:             []string{"A", "C"},
		Classes:             []string{"X"},
		ShowConnectedNeuron: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []AggregatedSynapse{
		{Pre: "A", Post: "C", Type: records.Chemical, Count: 5, ListCount: []int{4, 1}},
		{Pre: "X", Post: "C", Type: records.Chemical, Count: 6, ListCount: []int{6, 0}},
	}, resp.Synapses)
}

func TestAggregate_Orphans(t *testing.T) {
	a := newAggregator(t)

	resp, err := a.Aggregate(context.Background(), Request{
		Datasets: []string{"D1"},
		Neurons:  []string{"E", "NOPE"},
		Classes:  []string{"Z", "MISSING"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Synapses)
	assert.Equal(t, []string{"E", "Z"}, resp.Neurons)

	resp, err = a.Aggregate(context.Background(), Request{
		Datasets:            []string{"D1"},
		Neurons:             []string{"E"},
		ShowConnectedNeuron: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Neurons)
}

func TestAggregate_Errors(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()

	_, err := a.Aggregate(ctx, Request{})
	assert.ErrorIs(t, err, ErrNoDatasets)

	_, err = a.Aggregate(ctx, Request{Datasets: []string{"D1", "D9"}})
	assert.ErrorIs(t, err, ErrUnknownDataset)

	_, err = a.Aggregate(ctx, Request{Datasets: []string{"D1", "D1"}})
	assert.ErrorIs(t, err, ErrDuplicateDataset)

	empty := New(records.NewMemoryStore(), nil, nil, Config{Logger: quietLogger()})
	_, err = empty.Aggregate(ctx, Request{Datasets: []string{"D1"}})
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestAggregate_CachedResultIsIdentical(t *testing.T) {
	store, cat := newFixture(t)
	reader := &countingReader{Reader: store}
	memo := cache.NewMemo(cache.NewMemoryCache(), quietLogger())
	a := New(reader, cat, memo, Config{SubResults: true, Logger: quietLogger()})

	req := Request{
		Datasets:            []string{"D1", "D2"},
		Neurons:             []string{"A"},
		Classes:             []string{"Y"},
		ShowConnectedNeuron: true,
	}
	cold, err := a.Aggregate(context.Background(), req)
	require.NoError(t, err)
	calls := reader.calls.Load()
	assert.Equal(t, int32(4), calls)

	warm, err := a.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calls, reader.calls.Load())

	coldJSON, err := json.Marshal(cold)
	require.NoError(t, err)
	warmJSON, err := json.Marshal(warm)
	require.NoError(t, err)
	assert.JSONEq(t, string(coldJSON), string(warmJSON))
	assert.Equal(t, coldJSON, warmJSON)

	// Repeated names select the same set: full-result hit.
	req.Neurons = []string{"A", "A"}
	_, err = a.Aggregate(context.Background(), req)
	require.NoError(t, err)

	// Dropping the full results reuses the sub-results.
	require.NoError(t, memo.Invalidate(context.Background(), cache.NamespacePrefix(NamespaceEdges)))
	_, err = a.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calls, reader.calls.Load())

	// Dropping one dataset forces only its reads.
	require.NoError(t, memo.Invalidate(context.Background(), InvalidationPrefixes([]string{"D2"})...))
	_, err = a.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calls+2, reader.calls.Load())
}

// gatedReader blocks SynapsesTouching until release is closed and reports
// the first blocked call on entered.
type gatedReader struct {
	records.Reader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReader) SynapsesTouching(ctx context.Context, datasetID string, sel records.Selector) ([]records.Synapse, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Reader.SynapsesTouching(ctx, datasetID, sel)
}

func TestAggregate_InFlightResultDoesNotOutliveInstall(t *testing.T) {
	for _, sub := range []bool{false, true} {
		t.Run(fmt.Sprintf("sub_results=%v", sub), func(t *testing.T) {
			oldStore, oldCat := newFixture(t)
			gate := &gatedReader{
				Reader:  oldStore,
				entered: make(chan struct{}),
				release: make(chan struct{}),
			}
			memo := cache.NewMemo(cache.NewMemoryCache(), quietLogger())
			a := New(gate, oldCat, memo, Config{SubResults: sub, Logger: quietLogger()})
			req := Request{
				Datasets:             []string{"D1"},
				Neurons:              []string{"A", "C"},
				ShowIndividualNeuron: true,
			}

			type outcome struct {
				resp *Response
				err  error
			}
			done := make(chan outcome, 1)
			go func() {
				resp, err := a.Aggregate(context.Background(), req)
				done <- outcome{resp, err}
			}()

			select {
			case <-gate.entered:
			case <-time.After(5 * time.Second):
				t.Fatal("aggregate never reached the reader")
			}

			newStore, newCat := newFixture(t, records.Synapse{
				Dataset: "D1", Pre: "A", Post: "C", Type: records.Chemical, Count: 102,
			})
			a.Install(newStore, newCat)
			require.NoError(t, memo.Invalidate(context.Background(), InvalidationPrefixes([]string{"D1"})...))
			close(gate.release)

			var inFlight outcome
			select {
			case inFlight = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("aggregate did not finish")
			}
			require.NoError(t, inFlight.err)
			require.Len(t, inFlight.resp.Synapses, 1)
			assert.Equal(t, 4, inFlight.resp.Synapses[0].Count)

			fresh, err := a.Aggregate(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, fresh.Synapses, 1)
			assert.Equal(t, 106, fresh.Synapses[0].Count)
			assert.Equal(t, uint64(2), a.Generation())
		})
	}
}

func TestNewEdgeKey(t *testing.T) {
	assert.Equal(t, newEdgeKey("B", "A", records.Electrical), newEdgeKey("A", "B", records.Electrical))
	assert.NotEqual(t, newEdgeKey("B", "A", records.Chemical), newEdgeKey("A", "B", records.Chemical))
	assert.NotEqual(t, newEdgeKey("AB", "C", records.Chemical), newEdgeKey("A", "BC", records.Chemical))
}

func TestRequestCacheParts(t *testing.T) {
	a := Request{Datasets: []string{"D1"}, Neurons: []string{"B", "A"}}
	b := Request{Datasets: []string{"D1"}, Neurons: []string{"A", "B", "A"}}
	assert.Equal(t, a.cacheParts(), b.cacheParts())

	c := Request{Datasets: []string{"D1"}, Classes: []string{"A", "B"}}
	assert.NotEqual(t, cache.Key(NamespaceEdges, a.cacheParts()...), cache.Key(NamespaceEdges, c.cacheParts()...))

	d := Request{Datasets: []string{"D2", "D1"}}
	e := Request{Datasets: []string{"D1", "D2"}}
	assert.NotEqual(t, d.cacheParts(), e.cacheParts())
}
